package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Git resolves repositories against local mirrors under a root directory.
//
// A repository named "github.com/acme/api" is looked up at
// <root>/github.com/acme/api, then <root>/github.com/acme/api.git.
type Git struct {
	root     string
	revision string
}

// NewGit returns a resolver over mirrors in root. An empty revision means HEAD.
func NewGit(root, revision string) (*Git, error) {
	if root == "" {
		return nil, errors.New("git mirror root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving mirror root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("mirror root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mirror root %s is not a directory", abs)
	}
	if revision == "" {
		revision = DefaultRevision
	}
	return &Git{root: abs, revision: revision}, nil
}

// Resolve opens the mirror for name and resolves the configured revision.
func (g *Git) Resolve(ctx context.Context, name string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if err := ValidateName(name); err != nil {
		return Snapshot{}, err
	}

	repo, err := g.open(name)
	if err != nil {
		return Snapshot{}, err
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(g.revision))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s@%s: %v", ErrRevisionNotFound, name, g.revision, err)
	}
	return Snapshot{Repo: name, Commit: hash.String()}, nil
}

func (g *Git) open(name string) (*git.Repository, error) {
	base := filepath.Join(g.root, filepath.FromSlash(name))
	for _, path := range []string{base, base + ".git"} {
		repo, err := git.PlainOpen(path)
		if err == nil {
			return repo, nil
		}
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, name)
}
