// Package http provides the HTTP API for reposearch.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/search"
	"github.com/fyrsmithlabs/reposearch/internal/telemetry"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = "1M"

// Searcher is the search surface the server exposes.
type Searcher interface {
	Search(ctx context.Context, p search.PatternSpec, repos []string) (*search.Result, error)
	SearchCommit(ctx context.Context, repo, commit string, p search.PatternSpec) ([]search.RepoMatch, error)
}

// Server provides HTTP endpoints for reposearch.
type Server struct {
	echo      *echo.Echo
	searcher  Searcher
	logger    *logging.Logger
	config    *Config
	gatherer  prometheus.Gatherer
	telemetry *telemetry.Telemetry
	endpoint  string
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Version is reported by GET /health.
	Version string
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	gatherer      prometheus.Gatherer
	meterProvider metric.MeterProvider
	telemetry     *telemetry.Telemetry
	endpoint      string
}

// WithGatherer sets the registry served on /metrics. Defaults to the
// Prometheus default gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *serverOptions) { o.gatherer = g }
}

// WithMeterProvider records HTTP metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *serverOptions) { o.meterProvider = mp }
}

// WithTelemetry reports telemetry health on GET /health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *serverOptions) { o.telemetry = t }
}

// WithSearcherEndpoint reports the searcher backend on GET /health. An empty
// endpoint is reported as unconfigured.
func WithSearcherEndpoint(endpoint string) Option {
	return func(o *serverOptions) { o.endpoint = endpoint }
}

// NewServer creates a new HTTP server.
func NewServer(searcher Searcher, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	o := &serverOptions{gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	var httpMetrics *HTTPMetrics
	if o.meterProvider != nil {
		httpMetrics = NewHTTPMetricsWithProvider(o.meterProvider, logger)
	} else {
		httpMetrics = NewHTTPMetrics(logger)
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(httpMetrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()
			if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidID(id) {
				ctx = logging.WithRequestID(ctx, id)
				c.SetRequest(req.WithContext(ctx))
			}

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)

			return nil
		}
	})

	s := &Server{
		echo:      e,
		searcher:  searcher,
		logger:    logger,
		config:    cfg,
		gatherer:  o.gatherer,
		telemetry: o.telemetry,
		endpoint:  o.endpoint,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.POST("/search/commit", s.handleSearchCommit)
}

// handleHealth reports liveness and whether a searcher backend is configured.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Searcher: "configured",
	}
	if s.endpoint == "" {
		resp.Status = "degraded"
		resp.Searcher = "unconfigured"
	}
	if s.telemetry != nil && s.telemetry.IsEnabled() {
		resp.Telemetry = "ok"
		if h := s.telemetry.Health(); h.Degraded {
			resp.Telemetry = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSearch runs a cross-repository search.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid search request", zap.Error(err))
		return apiError(http.StatusBadRequest, search.KindInvalid, "invalid request body")
	}

	res, err := s.searcher.Search(c.Request().Context(), req.Pattern, req.Repos)
	if err != nil {
		return searchError(err)
	}

	return c.JSON(http.StatusOK, SearchResponse{
		SearchID: res.SearchID,
		Matches:  toMatchResponses(res.Matches),
		Count:    res.Len(),
	})
}

// handleSearchCommit searches one repository at a known commit.
func (s *Server) handleSearchCommit(c echo.Context) error {
	var req CommitSearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid commit search request", zap.Error(err))
		return apiError(http.StatusBadRequest, search.KindInvalid, "invalid request body")
	}
	if req.Commit == "" {
		return apiError(http.StatusBadRequest, search.KindInvalid, "commit field is required")
	}

	matches, err := s.searcher.SearchCommit(c.Request().Context(), req.Repo, req.Commit, req.Pattern)
	if err != nil {
		return searchError(err)
	}

	return c.JSON(http.StatusOK, CommitSearchResponse{
		Matches: toMatchResponses(matches),
		Count:   len(matches),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// apiErr is an error already mapped to a status and kind.
type apiErr struct {
	status int
	kind   search.Kind
	msg    string
}

func (e *apiErr) Error() string { return e.msg }

func apiError(status int, kind search.Kind, msg string) error {
	return &apiErr{status: status, kind: kind, msg: msg}
}

// StatusFor maps a search failure to an HTTP status code.
func StatusFor(kind search.Kind) int {
	switch kind {
	case search.KindInvalid:
		return http.StatusBadRequest
	case search.KindConfiguration, search.KindCancellation:
		return http.StatusServiceUnavailable
	case search.KindNetwork, search.KindRemote, search.KindProtocol, search.KindResolve:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func searchError(err error) error {
	kind := search.KindOf(err)
	return &apiErr{status: StatusFor(kind), kind: kind, msg: err.Error()}
}

// errorHandler renders every error as an ErrorResponse.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		detail := ErrorDetail{Kind: string(search.KindUnknown), Message: "internal server error"}

		var ae *apiErr
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			status = ae.status
			detail = ErrorDetail{Kind: string(ae.kind), Message: ae.msg}
		case errors.As(err, &he):
			status = he.Code
			detail = ErrorDetail{Kind: string(search.KindInvalid), Message: fmt.Sprint(he.Message)}
			if status >= http.StatusInternalServerError {
				detail.Kind = string(search.KindUnknown)
			}
		default:
			logger.Error(c.Request().Context(), "unhandled http error", zap.Error(err))
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, ErrorResponse{Error: detail})
		}
		if writeErr != nil {
			logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(writeErr))
		}
	}
}
