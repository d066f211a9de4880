package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/reposearch/internal/config"
)

// GitHubConfig configures the GitHub resolver.
type GitHubConfig struct {
	// Token authenticates API calls. Unauthenticated calls are heavily rate limited.
	Token config.Secret

	// Owner is prepended to names without an owner component.
	Owner string

	// Revision is the ref to resolve. HEAD resolves the default branch.
	Revision string

	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
}

// GitHub resolves repositories through the GitHub REST API.
type GitHub struct {
	client   *github.Client
	owner    string
	revision string
}

// NewGitHub creates a GitHub resolver with oauth2 token authentication.
func NewGitHub(ctx context.Context, cfg GitHubConfig) (*GitHub, error) {
	var httpClient *http.Client
	if cfg.Token.IsSet() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	client := github.NewClient(httpClient)

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = u
	}

	revision := cfg.Revision
	if revision == "" {
		revision = DefaultRevision
	}

	return &GitHub{client: client, owner: cfg.Owner, revision: revision}, nil
}

// Resolve looks up the commit SHA of the configured revision.
func (g *GitHub) Resolve(ctx context.Context, name string) (Snapshot, error) {
	if err := ValidateName(name); err != nil {
		return Snapshot{}, err
	}
	owner, repo, err := g.split(name)
	if err != nil {
		return Snapshot{}, err
	}

	ref := g.revision
	if ref == DefaultRevision {
		r, resp, err := g.client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return Snapshot{}, classifyGitHubError(name, resp, err, ErrRepoNotFound)
		}
		ref = r.GetDefaultBranch()
		if ref == "" {
			return Snapshot{}, fmt.Errorf("%w: %s has no default branch", ErrRevisionNotFound, name)
		}
	}

	sha, resp, err := g.client.Repositories.GetCommitSHA1(ctx, owner, repo, ref, "")
	if err != nil {
		return Snapshot{}, classifyGitHubError(name, resp, err, ErrRevisionNotFound)
	}
	return Snapshot{Repo: name, Commit: sha}, nil
}

// split accepts owner/repo, github.com/owner/repo, or a bare repo when an
// owner is configured.
func (g *GitHub) split(name string) (string, string, error) {
	parts := strings.Split(strings.TrimPrefix(name, "github.com/"), "/")
	switch {
	case len(parts) == 2:
		return parts[0], parts[1], nil
	case len(parts) == 1 && g.owner != "":
		return g.owner, parts[0], nil
	default:
		return "", "", fmt.Errorf("%w: %q is not owner/repo", ErrInvalidRepoName, name)
	}
}

func classifyGitHubError(name string, resp *github.Response, err error, notFound error) error {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", notFound, name)
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("github rate limit resolving %s: %w", name, err)
	}
	return fmt.Errorf("github api resolving %s: %w", name, err)
}
