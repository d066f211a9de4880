package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/reposearch/internal/search"

// maxErrorBodyBytes caps how much of a non-200 body is kept in a RemoteError.
const maxErrorBodyBytes = 64 * 1024

// Searcher runs a pattern search against one repository at one commit.
type Searcher interface {
	Search(ctx context.Context, repo, commit string, p PatternSpec) ([]FileMatch, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, repo, commit string, p PatternSpec) ([]FileMatch, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, repo, commit string, p PatternSpec) ([]FileMatch, error) {
	return f(ctx, repo, commit, p)
}

// ClientConfig configures the searcher backend client.
type ClientConfig struct {
	// URL is the searcher endpoint, e.g. http://localhost:3181.
	URL string

	// RateLimit caps requests per second across all workers. 0 disables.
	RateLimit float64

	// Burst is the limiter burst size. Defaults to 1 when RateLimit is set.
	Burst int

	// HTTPClient overrides the transport. Defaults to a client without a timeout;
	// per-call deadlines come from the context.
	HTTPClient *http.Client

	// TracerProvider overrides the global tracer provider.
	TracerProvider trace.TracerProvider

	Logger *logging.Logger
}

// Client is the HTTP client for the searcher backend.
//
// A Client holds only immutable configuration and is safe for concurrent use.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	tracer   trace.Tracer
	logger   *logging.Logger
}

// NewClient validates cfg and returns a client.
//
// Returns a ConfigurationError when the endpoint is missing or not an
// absolute http(s) URL.
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{
		endpoint: endpoint,
		http:     httpClient,
		limiter:  limiter,
		tracer:   tp.Tracer(instrumentationName),
		logger:   logger.Named("searcher"),
	}, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoEndpoint
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid searcher url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("searcher url %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("searcher url %q has no host", raw)
	}
	return u, nil
}

// Endpoint returns the configured searcher URL.
func (c *Client) Endpoint() string {
	if c == nil || c.endpoint == nil {
		return ""
	}
	return c.endpoint.String()
}

// Search issues one GET to the searcher and decodes the file matches.
func (c *Client) Search(ctx context.Context, repo, commit string, p PatternSpec) ([]FileMatch, error) {
	if c == nil || c.endpoint == nil {
		return nil, &ConfigurationError{Err: ErrNoEndpoint}
	}

	ctx, span := c.tracer.Start(ctx, "searcher.search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("search.repo", repo),
			attribute.String("search.commit", commit),
			attribute.Bool("search.regexp", p.IsRegExp),
		),
	)
	defer span.End()

	matches, err := c.do(ctx, repo, commit, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.file_matches", len(matches)))
	return matches, nil
}

func (c *Client) do(ctx context.Context, repo, commit string, p PatternSpec) ([]FileMatch, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Repo: repo, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	u := *c.endpoint
	u.RawQuery = buildQuery(repo, commit, p).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.Trace(ctx, "searcher request",
		zap.String("repo", repo),
		zap.String("commit", commit),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Repo: repo, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if err != nil {
			return nil, &NetworkError{Repo: repo, Err: fmt.Errorf("reading error body: %w", err)}
		}
		return nil, &RemoteError{Repo: repo, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var wire []wireFileMatch
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &ProtocolError{Repo: repo, Err: err}
	}

	matches, err := decodeFileMatches(wire)
	if err != nil {
		return nil, &ProtocolError{Repo: repo, Err: err}
	}
	return matches, nil
}

// buildQuery encodes the searcher query string. Flags are only sent when set.
func buildQuery(repo, commit string, p PatternSpec) url.Values {
	q := url.Values{
		"Repo":    []string{repo},
		"Commit":  []string{commit},
		"Pattern": []string{p.Pattern},
	}
	if p.IsRegExp {
		q.Set("IsRegExp", "true")
	}
	if p.IsWordMatch {
		q.Set("IsWordMatch", "true")
	}
	if p.IsCaseSensitive {
		q.Set("IsCaseSensitive", "true")
	}
	return q
}

// wireFileMatch is the searcher JSON shape.
type wireFileMatch struct {
	Path        string          `json:"Path"`
	LineMatches []wireLineMatch `json:"LineMatches"`
}

type wireLineMatch struct {
	Preview          string    `json:"Preview"`
	LineNumber       int32     `json:"LineNumber"`
	OffsetAndLengths [][]int32 `json:"OffsetAndLengths"`
}

// decodeFileMatches converts wire matches, shifting 0-based line numbers to 1-based.
func decodeFileMatches(wire []wireFileMatch) ([]FileMatch, error) {
	out := make([]FileMatch, len(wire))
	for i, wf := range wire {
		if wf.Path == "" {
			return nil, fmt.Errorf("file match %d has no path", i)
		}
		lines := make([]LineMatch, len(wf.LineMatches))
		for j, wl := range wf.LineMatches {
			if wl.LineNumber < 0 {
				return nil, fmt.Errorf("%s: negative line number %d", wf.Path, wl.LineNumber)
			}
			spans := make([][2]int32, len(wl.OffsetAndLengths))
			for k, ol := range wl.OffsetAndLengths {
				if len(ol) != 2 {
					return nil, fmt.Errorf("%s:%d: offset/length pair has %d elements", wf.Path, wl.LineNumber+1, len(ol))
				}
				spans[k] = [2]int32{ol[0], ol[1]}
			}
			lines[j] = LineMatch{
				Preview:          wl.Preview,
				LineNumber:       wl.LineNumber + 1,
				OffsetAndLengths: spans,
			}
		}
		out[i] = FileMatch{Path: wf.Path, LineMatches: lines}
	}
	return out, nil
}
