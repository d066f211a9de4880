// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry)
//   - Automatic context field injection (trace_id, search id, repo)
//   - Defense-in-depth secret redaction
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithSearchID(ctx, searchID)
//	ctx = logging.WithRepo(ctx, "github.com/acme/api")
//	logger.Info(ctx, "repository searched", zap.Duration("duration", d))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2025-11-24T10:15:30Z",
//	  "level": "info",
//	  "msg": "repository searched",
//	  "trace_id": "abc123",
//	  "search.id": "5f1c2b7a-1d4e-4c55-9a61-0c2f4b0f3a11",
//	  "search.repo": "github.com/acme/api",
//	  "duration": "45ms"
//	}
//
// # Configuration
//
// reposearchd reads level and format from the logging section of its
// config (LOGGING_LEVEL and LOGGING_FORMAT in the environment). "trace" is
// accepted by ParseLevel.
//
// # Secret Redaction
//
// The stdout encoder masks fields named in RedactionConfig.Fields and
// replaces pattern matches (bearer tokens, GitHub tokens, URL userinfo)
// inside any string value, including the message. Helpers cover the
// common cases explicitly:
//
//	logger.Info(ctx, "github resolver configured",
//	    logging.Secret("token", cfg.Metadata.GitHubToken),
//	    logging.URL("base_url", cfg.Metadata.GitHubBaseURL))
//
// # Sampling
//
// Each level listed in SamplingConfig.Levels gets its own sampler keyed on
// the message. Defaults:
//   - Trace: first 1 per second
//   - Debug: first 50, then 1 every 10
//   - Info: first 100, then 1 every 10
//   - Warn: first 100, then 1 every 100
//
// Error and above are never sampled. Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
