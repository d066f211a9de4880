package search

import (
	"fmt"
	"regexp"
)

// PatternSpec describes a single text search request.
//
// It is a value type: callers construct it once per request and pass it by
// value, so no worker can observe a mutation made by another.
type PatternSpec struct {
	Pattern         string `json:"pattern"`
	IsRegExp        bool   `json:"is_regexp,omitempty"`
	IsWordMatch     bool   `json:"is_word_match,omitempty"`
	IsCaseSensitive bool   `json:"is_case_sensitive,omitempty"`
}

// maxPatternLen bounds the pattern forwarded to the searcher backend.
const maxPatternLen = 4096

// Validate checks that the pattern can be sent to the backend. Whitespace is
// a valid literal pattern.
func (p PatternSpec) Validate() error {
	if p.Pattern == "" {
		return fmt.Errorf("%w: pattern cannot be empty", ErrInvalidPattern)
	}
	if len(p.Pattern) > maxPatternLen {
		return fmt.Errorf("%w: pattern exceeds %d bytes", ErrInvalidPattern, maxPatternLen)
	}
	if p.IsRegExp {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
	}
	return nil
}

// LineMatch is one matching line inside a file.
type LineMatch struct {
	// Preview is a bounded excerpt of the matching line.
	Preview string `json:"preview"`

	// LineNumber is 1-based.
	LineNumber int32 `json:"line_number"`

	// OffsetAndLengths marks match spans within Preview.
	OffsetAndLengths [][2]int32 `json:"offset_and_lengths"`
}

// FileMatch is a matched file and its matching lines, in backend order.
type FileMatch struct {
	Path        string      `json:"path"`
	LineMatches []LineMatch `json:"line_matches"`
}

// RepoMatch is one matched file within one repository at a fixed commit.
//
// (Repo, Commit, Path) identifies a RepoMatch within a Result.
type RepoMatch struct {
	Repo        string      `json:"repo"`
	Commit      string      `json:"commit"`
	Path        string      `json:"path"`
	LineMatches []LineMatch `json:"line_matches"`
}

// URI renders the match location as repo?commit#path.
func (rm RepoMatch) URI() string {
	return rm.Repo + "?" + rm.Commit + "#" + rm.Path
}

// Key returns the identity triple joined into a single comparable string.
func (rm RepoMatch) Key() string {
	return rm.Repo + "\x00" + rm.Commit + "\x00" + rm.Path
}

// Result is the complete cross-repository answer.
type Result struct {
	// SearchID identifies the orchestrator call that produced the result.
	SearchID string `json:"search_id"`

	// Matches are sorted by ascending line match count, then path.
	Matches []RepoMatch `json:"matches"`
}

// Len returns the number of matched files.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Matches)
}

// toRepoMatches attaches repository identity to a file match batch.
func toRepoMatches(repo, commit string, files []FileMatch) []RepoMatch {
	out := make([]RepoMatch, len(files))
	for i, fm := range files {
		out[i] = RepoMatch{
			Repo:        repo,
			Commit:      commit,
			Path:        fm.Path,
			LineMatches: fm.LineMatches,
		}
	}
	return out
}
