// Reposearchd serves cross-repository text search over HTTP and MCP.
//
// Each search resolves the requested repositories to commits, fans the
// pattern out to a searcher backend with a bounded worker pool and returns
// either every match, sorted, or the first error.
//
// Configuration is loaded from ~/.config/reposearch/config.yaml (or --config)
// and overridden by environment variables. A .env file in the working
// directory is loaded first when present.
//
// Usage:
//
//	# Start the HTTP daemon
//	reposearchd
//
//	# Serve MCP over stdio instead of HTTP
//	reposearchd --mcp-stdio
//
//	# Configure via environment
//	SEARCHER_URL=http://localhost:3181 SERVER_HTTP_PORT=9191 reposearchd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/config"
	"github.com/fyrsmithlabs/reposearch/internal/events"
	httpserver "github.com/fyrsmithlabs/reposearch/internal/http"
	"github.com/fyrsmithlabs/reposearch/internal/logging"
	mcpserver "github.com/fyrsmithlabs/reposearch/internal/mcp"
	"github.com/fyrsmithlabs/reposearch/internal/metadata"
	"github.com/fyrsmithlabs/reposearch/internal/search"
	"github.com/fyrsmithlabs/reposearch/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// options are the command-line flags.
type options struct {
	configPath string
	envFile    string
	mcpStdio   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config file (default ~/.config/reposearch/config.yaml)")
	flag.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flag.BoolVar(&opts.mcpStdio, "mcp-stdio", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()
	args := flag.Args()

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  reposearchd           Start the reposearch daemon\n")
			fmt.Fprintf(os.Stderr, "  reposearchd version   Show version information\n")
			os.Exit(1)
		}
	}

	if err := loadEnvFile(opts.envFile); err != nil {
		log.Fatalf("Failed to load %s: %v", opts.envFile, err)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("reposearchd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// loadEnvFile loads path into the environment. A missing file is not an
// error; variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// run starts reposearchd and blocks until ctx is cancelled.
//
// This function:
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Builds the repository resolver, searcher client and event publisher
//  4. Wires the orchestrator
//  5. Serves HTTP (or MCP over stdio) until shutdown
func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel, opts.mcpStdio)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "Starting reposearchd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("metadata_provider", cfg.Metadata.Provider),
		zap.Int("concurrency", cfg.Searcher.Concurrency))

	deps, err := initDependencies(ctx, cfg, tel, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	orchOpts := []search.Option{
		search.WithLogger(logger),
		search.WithTracerProvider(tel.TracerProvider()),
	}
	if deps.publisher != nil {
		orchOpts = append(orchOpts, search.WithObserver(deps.publisher))
	}
	orch := search.New(deps.client, deps.resolver, search.Config{
		Concurrency: cfg.Searcher.Concurrency,
		CallTimeout: cfg.Searcher.Timeout.Duration(),
		MaxRepos:    cfg.Searcher.MaxRepos,
	}, orchOpts...)

	if opts.mcpStdio {
		return runStdio(ctx, orch, tel, logger)
	}

	srv, err := httpserver.NewServer(orch, logger, &httpserver.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	},
		httpserver.WithTelemetry(tel),
		httpserver.WithMeterProvider(tel.MeterProvider()),
		httpserver.WithSearcherEndpoint(deps.client.Endpoint()),
	)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info(shutdownCtx, "Server shutdown complete")
	return nil
}

// runStdio serves the MCP tools on stdin/stdout until ctx is cancelled.
func runStdio(ctx context.Context, orch *search.Orchestrator, tel *telemetry.Telemetry, logger *logging.Logger) error {
	srv, err := mcpserver.NewServer(&mcpserver.Config{
		Name:          "reposearch",
		Version:       version,
		Logger:        logger,
		MeterProvider: tel.MeterProvider(),
	}, orch)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	// stdout carries the MCP protocol
	fmt.Fprintf(os.Stderr, "reposearchd stdio mode started\n")
	return srv.Run(ctx)
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	client    *search.Client
	resolver  metadata.Resolver
	natsConn  *nats.Conn
	publisher *events.Publisher
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		_ = d.natsConn.Drain()
	}
}

// initLogger builds the process logger. In stdio mode stdout carries MCP, so
// only the OTEL core is kept.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry, stdio bool) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		logCfg.Level = level
	}
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	logCfg.Fields["service"] = cfg.Observability.ServiceName
	logCfg.Fields["version"] = version

	lp := tel.LoggerProvider()
	logCfg.Output.OTEL = lp != nil
	if stdio {
		logCfg.Output.Stdout = false
		if lp == nil {
			return logging.NewNop(), nil
		}
	}
	return logging.NewLogger(logCfg, lp)
}

// initDependencies builds the searcher client, the resolver chain and the
// optional NATS event publisher.
func initDependencies(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, logger *logging.Logger) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.Searcher.URL == "" {
		// Searches fail with a configuration error until a URL is set.
		logger.Warn(ctx, "searcher url is not configured")
	} else {
		client, err := search.NewClient(search.ClientConfig{
			URL:            cfg.Searcher.URL,
			RateLimit:      cfg.Searcher.RateLimit,
			Burst:          cfg.Searcher.Burst,
			TracerProvider: tel.TracerProvider(),
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		deps.client = client
		logger.Info(ctx, "Searcher client configured", logging.URL("url", client.Endpoint()))
	}

	resolver, err := newResolver(ctx, cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata resolver: %w", err)
	}
	deps.resolver = resolver
	logger.Info(ctx, "Metadata resolver configured",
		zap.String("provider", cfg.Metadata.Provider),
		logging.Secret("github_token", cfg.Metadata.GitHubToken),
		zap.Int("cache_size", cfg.Metadata.CacheSize))

	if cfg.Events.Enabled {
		nc, err := events.Connect(cfg.Events.NATSURL, cfg.Observability.ServiceName, logger)
		if err != nil {
			return nil, err
		}
		deps.natsConn = nc

		pub, err := events.NewPublisher(nc, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			nc.Close()
			return nil, err
		}
		deps.publisher = pub
		logger.Info(ctx, "Connected to NATS",
			logging.URL("url", cfg.Events.NATSURL),
			zap.String("subject_prefix", cfg.Events.SubjectPrefix))
	}

	return deps, nil
}

// newResolver builds the configured provider, wrapped in a TTL cache when
// cache_size is positive.
func newResolver(ctx context.Context, cfg config.MetadataConfig) (metadata.Resolver, error) {
	var (
		resolver metadata.Resolver
		err      error
	)
	switch cfg.Provider {
	case config.ProviderStatic:
		resolver = metadata.NewStatic(cfg.StaticCommits())
	case config.ProviderGit:
		resolver, err = metadata.NewGit(cfg.GitRoot, cfg.Revision)
	case config.ProviderGitHub:
		resolver, err = metadata.NewGitHub(ctx, metadata.GitHubConfig{
			Token:    cfg.GitHubToken,
			Owner:    cfg.GitHubOwner,
			Revision: cfg.Revision,
			BaseURL:  cfg.GitHubBaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	// Static tables never change.
	if cfg.CacheSize <= 0 || cfg.Provider == config.ProviderStatic {
		return resolver, nil
	}
	ttl := cfg.CacheTTL.Duration()
	if ttl <= 0 {
		ttl = time.Minute
	}
	return metadata.NewCached(resolver, cfg.CacheSize, ttl)
}
