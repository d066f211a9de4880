package metadata

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Resolution errors.
var (
	ErrRepoNotFound     = errors.New("repository not found")
	ErrRevisionNotFound = errors.New("revision not found")
	ErrInvalidRepoName  = errors.New("invalid repository name")
)

// DefaultRevision is resolved when a resolver has no revision configured.
const DefaultRevision = "HEAD"

// Snapshot is a repository pinned to a concrete commit.
type Snapshot struct {
	// Repo is the stable repository identity passed to the searcher.
	Repo string

	// Commit is the resolved commit ID.
	Commit string
}

// Resolver maps a repository name to a snapshot.
//
// Implementations must be safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Snapshot, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name string) (Snapshot, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, name string) (Snapshot, error) {
	return f(ctx, name)
}

// repoNamePattern allows host/owner/name style names.
var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(/[A-Za-z0-9._-]+)*$`)

// ValidateName rejects names that could escape a mirror root or break URLs.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRepoName)
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: %q exceeds 255 characters", ErrInvalidRepoName, name)
	}
	if !repoNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidRepoName, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidRepoName, name)
		}
	}
	return nil
}

// Static resolves repositories from a fixed name -> commit table.
type Static struct {
	commits map[string]string
}

// NewStatic copies commits into a new Static resolver.
func NewStatic(commits map[string]string) *Static {
	m := make(map[string]string, len(commits))
	for name, commit := range commits {
		m[name] = commit
	}
	return &Static{commits: m}
}

// Resolve returns the configured commit for name.
func (s *Static) Resolve(ctx context.Context, name string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	commit, ok := s.commits[name]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrRepoNotFound, name)
	}
	return Snapshot{Repo: name, Commit: commit}, nil
}

// Names returns the known repository names, sorted.
func (s *Static) Names() []string {
	names := make([]string, 0, len(s.commits))
	for name := range s.commits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
