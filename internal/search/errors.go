package search

import (
	"context"
	"errors"
	"fmt"
)

// Request validation errors.
var (
	ErrInvalidPattern = errors.New("invalid pattern")
	ErrTooManyRepos   = errors.New("too many repositories")
	ErrEmptyRepoName  = errors.New("repository name cannot be empty")
	ErrEmptyCommit    = errors.New("commit cannot be empty")
)

// ErrNoEndpoint is wrapped by ConfigurationError when the searcher URL is unset.
var ErrNoEndpoint = errors.New("a searcher service has not been configured")

// Kind classifies a failure for logs, metric labels and API responses.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindNetwork       Kind = "network"
	KindRemote        Kind = "remote"
	KindProtocol      Kind = "protocol"
	KindCancellation  Kind = "cancellation"
	KindResolve       Kind = "resolve"
	KindInvalid       Kind = "invalid_request"
	KindUnknown       Kind = "unknown"
)

// ConfigurationError reports a missing or invalid searcher endpoint.
// It is raised before any network call is made.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("searcher configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure reaching the searcher.
type NetworkError struct {
	Repo string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("searching %s: transport: %v", e.Repo, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the transport failure was a per-call deadline.
func (e *NetworkError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// RemoteError reports a non-200 searcher response.
type RemoteError struct {
	Repo       string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("searching %s: non-200 response: code=%d body=%s", e.Repo, e.StatusCode, e.Body)
}

// ProtocolError reports a searcher response that does not decode.
type ProtocolError struct {
	Repo string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("searching %s: malformed response: %v", e.Repo, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ResolveError reports a failure resolving a repository to a snapshot.
type ResolveError struct {
	Repo string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving %s: %v", e.Repo, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// CancellationError reports that work was abandoned, either because a
// sibling repository search failed or because the caller went away.
type CancellationError struct {
	Repo  string
	Cause error
}

func (e *CancellationError) Error() string {
	if e.Repo == "" {
		return fmt.Sprintf("search canceled: %v", e.Cause)
	}
	return fmt.Sprintf("search of %s canceled: %v", e.Repo, e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }

// KindOf returns the failure class of err.
func KindOf(err error) Kind {
	var (
		cfgErr     *ConfigurationError
		netErr     *NetworkError
		remoteErr  *RemoteError
		protoErr   *ProtocolError
		cancelErr  *CancellationError
		resolveErr *ResolveError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &cancelErr):
		return KindCancellation
	case errors.As(err, &resolveErr):
		return KindResolve
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &remoteErr):
		return KindRemote
	case errors.As(err, &protoErr):
		return KindProtocol
	case errors.Is(err, ErrInvalidPattern), errors.Is(err, ErrTooManyRepos), errors.Is(err, ErrEmptyRepoName), errors.Is(err, ErrEmptyCommit):
		return KindInvalid
	default:
		return KindUnknown
	}
}
