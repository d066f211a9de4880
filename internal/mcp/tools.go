package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/search"
)

const (
	toolSearchRepos  = "search_repos"
	toolSearchCommit = "search_commit"
)

type searchReposInput struct {
	Pattern         string   `json:"pattern" jsonschema:"Text or regular expression to search for"`
	IsRegExp        bool     `json:"is_regexp,omitempty" jsonschema:"Treat pattern as an RE2 regular expression"`
	IsWordMatch     bool     `json:"is_word_match,omitempty" jsonschema:"Only match whole words"`
	IsCaseSensitive bool     `json:"is_case_sensitive,omitempty" jsonschema:"Match case exactly"`
	Repos           []string `json:"repos" jsonschema:"Repository names to search, e.g. github.com/acme/api"`
}

type searchCommitInput struct {
	Pattern         string `json:"pattern" jsonschema:"Text or regular expression to search for"`
	IsRegExp        bool   `json:"is_regexp,omitempty" jsonschema:"Treat pattern as an RE2 regular expression"`
	IsWordMatch     bool   `json:"is_word_match,omitempty" jsonschema:"Only match whole words"`
	IsCaseSensitive bool   `json:"is_case_sensitive,omitempty" jsonschema:"Match case exactly"`
	Repo            string `json:"repo" jsonschema:"Repository name"`
	Commit          string `json:"commit" jsonschema:"Commit ID to search at"`
}

func patternSpec(pattern string, regexp, word, caseSensitive bool) search.PatternSpec {
	return search.PatternSpec{
		Pattern:         pattern,
		IsRegExp:        regexp,
		IsWordMatch:     word,
		IsCaseSensitive: caseSensitive,
	}
}

type lineOutput struct {
	Line    int32  `json:"line" jsonschema:"1-based line number"`
	Preview string `json:"preview" jsonschema:"Matching line excerpt"`
}

type matchOutput struct {
	URI   string       `json:"uri" jsonschema:"Match location as repo?commit#path"`
	Repo  string       `json:"repo"`
	Path  string       `json:"path"`
	Lines []lineOutput `json:"lines" jsonschema:"Matching lines in file order"`
}

type searchOutput struct {
	SearchID string        `json:"search_id,omitempty" jsonschema:"Identifier of the search in logs and events"`
	Matches  []matchOutput `json:"matches" jsonschema:"Matched files, fewest matching lines first"`
	Count    int           `json:"count" jsonschema:"Number of matched files"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolSearchRepos,
		Description: "Search a text pattern across many repositories at their current revision. Returns every matched file or a single error; partial results are never returned.",
	}, s.handleSearchRepos)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolSearchCommit,
		Description: "Search a text pattern in one repository at a specific commit.",
	}, s.handleSearchCommit)
}

func (s *Server) handleSearchRepos(ctx context.Context, req *mcp.CallToolRequest, args searchReposInput) (*mcp.CallToolResult, searchOutput, error) {
	done := s.metrics.Track(ctx, toolSearchRepos)
	var toolErr error
	defer func() { done(toolErr) }()

	p := patternSpec(args.Pattern, args.IsRegExp, args.IsWordMatch, args.IsCaseSensitive)
	res, err := s.searcher.Search(ctx, p, args.Repos)
	if err != nil {
		toolErr = toolError(err)
		s.logger.Debug(ctx, "search_repos failed", zap.Error(err))
		return nil, searchOutput{}, toolErr
	}

	out := searchOutput{
		SearchID: res.SearchID,
		Matches:  toMatchOutputs(res.Matches),
		Count:    res.Len(),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summarize(out.Count, distinct(args.Repos))},
		},
	}, out, nil
}

func (s *Server) handleSearchCommit(ctx context.Context, req *mcp.CallToolRequest, args searchCommitInput) (*mcp.CallToolResult, searchOutput, error) {
	done := s.metrics.Track(ctx, toolSearchCommit)
	var toolErr error
	defer func() { done(toolErr) }()

	if args.Commit == "" {
		toolErr = toolError(search.ErrEmptyCommit)
		return nil, searchOutput{}, toolErr
	}

	p := patternSpec(args.Pattern, args.IsRegExp, args.IsWordMatch, args.IsCaseSensitive)
	matches, err := s.searcher.SearchCommit(ctx, args.Repo, args.Commit, p)
	if err != nil {
		toolErr = toolError(err)
		return nil, searchOutput{}, toolErr
	}

	out := searchOutput{
		Matches: toMatchOutputs(matches),
		Count:   len(matches),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summarize(out.Count, 1)},
		},
	}, out, nil
}

// toolError prefixes err with its failure kind.
func toolError(err error) error {
	return fmt.Errorf("%s: %w", search.KindOf(err), err)
}

func summarize(files, repos int) string {
	return fmt.Sprintf("Found %d matching files in %d repositories", files, repos)
}

// distinct counts repository names the way the orchestrator does, once each.
func distinct(repos []string) int {
	seen := make(map[string]struct{}, len(repos))
	for _, r := range repos {
		seen[r] = struct{}{}
	}
	return len(seen)
}

func toMatchOutputs(matches []search.RepoMatch) []matchOutput {
	out := make([]matchOutput, len(matches))
	for i, m := range matches {
		lines := make([]lineOutput, len(m.LineMatches))
		for j, lm := range m.LineMatches {
			lines[j] = lineOutput{Line: lm.LineNumber, Preview: lm.Preview}
		}
		out[i] = matchOutput{
			URI:   m.URI(),
			Repo:  m.Repo,
			Path:  m.Path,
			Lines: lines,
		}
	}
	return out
}
