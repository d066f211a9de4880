package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/search"
)

// Searcher is the search surface exposed as tools.
type Searcher interface {
	Search(ctx context.Context, p search.PatternSpec, repos []string) (*search.Result, error)
	SearchCommit(ctx context.Context, repo, commit string, p search.PatternSpec) ([]search.RepoMatch, error)
}

// Server is an MCP server backed by a search orchestrator.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	metrics  *Metrics
	logger   *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "reposearch")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *logging.Logger

	// MeterProvider records tool metrics (default: global provider)
	MeterProvider metric.MeterProvider
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "reposearch",
		Version: "1.0.0",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates a new MCP server over searcher.
func NewServer(cfg *Config, searcher Searcher) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "reposearch"
	}
	if version == "" {
		version = "1.0.0"
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    name,
			Version: version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		searcher: searcher,
		metrics:  NewMetricsWithProvider(mp, logger),
		logger:   logger.Named("mcp"),
	}

	s.registerTools()

	return s, nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
