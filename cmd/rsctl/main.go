// Package main implements the rsctl CLI for running searches against a reposearchd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	api "github.com/fyrsmithlabs/reposearch/internal/http"
	"github.com/fyrsmithlabs/reposearch/internal/search"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries flags shared by every subcommand.
type cli struct {
	serverURL string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "rsctl",
		Short: "CLI for reposearchd HTTP server operations",
		Long: `rsctl is a command-line interface for the reposearchd HTTP server.
It runs cross-repository searches and checks server health.`,
		Version:      version,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&c.serverURL, "server", "http://localhost:9191", "reposearchd server URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 60*time.Second, "request timeout")
	root.AddCommand(c.searchCmd())
	root.AddCommand(c.commitCmd())
	root.AddCommand(c.healthCmd())
	return root
}

type patternFlags struct {
	regexp        bool
	word          bool
	caseSensitive bool
}

func (f *patternFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.regexp, "regexp", "e", false, "treat the pattern as a regular expression")
	cmd.Flags().BoolVarP(&f.word, "word", "w", false, "match whole words only")
	cmd.Flags().BoolVarP(&f.caseSensitive, "case", "c", false, "match case")
}

func (f *patternFlags) spec(pattern string) search.PatternSpec {
	return search.PatternSpec{
		Pattern:         pattern,
		IsRegExp:        f.regexp,
		IsWordMatch:     f.word,
		IsCaseSensitive: f.caseSensitive,
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var (
		repos  []string
		flags  patternFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search PATTERN",
		Short: "Search a pattern across repositories",
		Long: `Search a pattern across repositories at their default revision.

Examples:
  # Literal search in two repositories
  rsctl search --repo github.com/acme/api --repo github.com/acme/web TODO

  # Regular expression, case sensitive
  rsctl search -e -c --repo github.com/acme/api 'func \w+Handler'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(repos) == 0 {
				return fmt.Errorf("at least one --repo is required")
			}
			var resp api.SearchResponse
			req := api.SearchRequest{Pattern: flags.spec(args[0]), Repos: repos}
			if err := c.post(cmd, "/api/v1/search", req, &resp); err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			printMatches(cmd.OutOrStdout(), resp.Matches)
			fmt.Fprintf(cmd.ErrOrStderr(), "[rsctl] %d file(s) matched in %d repositories (search %s)\n",
				resp.Count, len(repos), resp.SearchID)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&repos, "repo", "r", nil, "repository to search (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	flags.register(cmd)
	return cmd
}

func (c *cli) commitCmd() *cobra.Command {
	var (
		flags  patternFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "commit REPO COMMIT PATTERN",
		Short: "Search a pattern in one repository at a pinned commit",
		Long: `Search a pattern in one repository at a pinned commit.

Examples:
  rsctl commit github.com/acme/api 0123abcd 'panic('`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.CommitSearchResponse
			req := api.CommitSearchRequest{Pattern: flags.spec(args[2]), Repo: args[0], Commit: args[1]}
			if err := c.post(cmd, "/api/v1/search/commit", req, &resp); err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			printMatches(cmd.OutOrStdout(), resp.Matches)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	flags.register(cmd)
	return cmd
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check reposearchd server health",
		Long: `Check the health status of the reposearchd HTTP server.

Examples:
  rsctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := c.url("/health")
			client := &http.Client{Timeout: 5 * time.Second}

			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", url, err)
			}
			defer resp.Body.Close()

			var health api.HealthResponse
			if err := decode(resp, &health); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", health.Status)
			fmt.Fprintf(out, "Server URL: %s\n", c.serverURL)
			if health.Version != "" {
				fmt.Fprintf(out, "Version: %s\n", health.Version)
			}
			searcher := health.Searcher
			if searcher == "" {
				searcher = "(not configured)"
			}
			fmt.Fprintf(out, "Searcher: %s\n", searcher)
			return nil
		},
	}
}

func (c *cli) url(path string) string {
	return strings.TrimRight(c.serverURL, "/") + path
}

// post sends body as JSON and decodes a 200 response into out.
func (c *cli) post(cmd *cobra.Command, path string, body, out any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.url(path)
	httpReq, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: c.timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return decode(resp, out)
}

// decode reads a 200 body into out, or turns an API error body into an error.
func decode(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("server returned status %d: %s: %s", resp.StatusCode, apiErr.Error.Kind, apiErr.Error.Message)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printMatches writes one grep-style line per line match.
func printMatches(w io.Writer, matches []api.MatchResponse) {
	for _, m := range matches {
		if len(m.LineMatches) == 0 {
			fmt.Fprintf(w, "%s@%s:%s\n", m.Repo, shortCommit(m.Commit), m.Path)
			continue
		}
		for _, lm := range m.LineMatches {
			fmt.Fprintf(w, "%s@%s:%s:%d: %s\n", m.Repo, shortCommit(m.Commit), m.Path, lm.LineNumber, lm.Preview)
		}
	}
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
