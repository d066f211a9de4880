// Package config provides configuration loading for reposearch.
//
// Configuration is read from a YAML file and overridden by environment
// variables. Every section has defaults, so an empty file (or no file at all)
// yields a runnable configuration once a searcher URL is supplied.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Metadata providers.
const (
	ProviderStatic = "static"
	ProviderGit    = "git"
	ProviderGitHub = "github"
)

// Defaults.
const (
	DefaultHTTPPort        = 9191
	DefaultConcurrency     = 10
	DefaultMaxRepos        = 500
	DefaultCacheSize       = 1024
	DefaultCacheTTL        = time.Minute
	DefaultSubjectPrefix   = "reposearch.search"
	DefaultServiceName     = "reposearch"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the complete reposearch configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Searcher      SearcherConfig      `koanf:"searcher"`
	Metadata      MetadataConfig      `koanf:"metadata"`
	Events        EventsConfig        `koanf:"events"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// SearcherConfig configures the searcher backend and the worker pool in front of it.
type SearcherConfig struct {
	// URL of the searcher backend. Required.
	URL string `koanf:"url"`

	// Concurrency is the number of workers per search.
	Concurrency int `koanf:"concurrency"`

	// Timeout bounds each searcher call. Zero means no per-call deadline.
	Timeout Duration `koanf:"timeout"`

	// MaxRepos caps the repositories accepted in one search.
	MaxRepos int `koanf:"max_repos"`

	// RateLimit caps searcher requests per second. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// MetadataConfig selects and configures the repository resolver.
type MetadataConfig struct {
	Provider string `koanf:"provider"`

	// Revision resolved for every repository. Defaults to HEAD.
	Revision string `koanf:"revision"`

	// GitRoot is the mirror directory for the git provider.
	GitRoot string `koanf:"git_root"`

	GitHubToken   Secret `koanf:"github_token"`
	GitHubOwner   string `koanf:"github_owner"`
	GitHubBaseURL string `koanf:"github_base_url"`

	// Static lists repositories for the static provider.
	Static []StaticRepo `koanf:"static"`

	// CacheSize of zero disables resolution caching.
	CacheSize int      `koanf:"cache_size"`
	CacheTTL  Duration `koanf:"cache_ttl"`
}

// StaticRepo pins one repository to a commit.
type StaticRepo struct {
	Name   string `koanf:"name"`
	Commit string `koanf:"commit"`
}

// EventsConfig controls search lifecycle events on NATS.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
}

// LoggingConfig selects level and encoding for the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// StaticCommits returns the static provider table as a map.
func (m MetadataConfig) StaticCommits() map[string]string {
	out := make(map[string]string, len(m.Static))
	for _, r := range m.Static {
		out[r.Name] = r.Commit
	}
	return out
}

// Validate validates the configuration.
//
// The searcher URL is not required here: a daemon without one still starts
// and reports a configuration error per search.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Searcher.URL != "" {
		u, err := url.Parse(c.Searcher.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid searcher url %q", c.Searcher.URL)
		}
	}
	if c.Searcher.Concurrency < 1 {
		return fmt.Errorf("searcher concurrency must be >= 1, got %d", c.Searcher.Concurrency)
	}
	if c.Searcher.MaxRepos < 0 {
		return fmt.Errorf("searcher max_repos cannot be negative")
	}
	if c.Searcher.RateLimit < 0 {
		return fmt.Errorf("searcher rate_limit cannot be negative")
	}

	switch c.Metadata.Provider {
	case ProviderStatic:
		for _, r := range c.Metadata.Static {
			if r.Name == "" || r.Commit == "" {
				return errors.New("static repositories need both name and commit")
			}
		}
	case ProviderGit:
		if c.Metadata.GitRoot == "" {
			return errors.New("metadata git_root required for git provider")
		}
		if strings.Contains(c.Metadata.GitRoot, "..") {
			return fmt.Errorf("metadata git_root cannot contain '..': %s", c.Metadata.GitRoot)
		}
	case ProviderGitHub:
	default:
		return fmt.Errorf("unknown metadata provider %q (want static, git or github)", c.Metadata.Provider)
	}
	if c.Metadata.CacheSize < 0 {
		return errors.New("metadata cache_size cannot be negative")
	}

	if c.Events.Enabled && c.Events.NATSURL == "" {
		return errors.New("events nats_url required when events are enabled")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1, got %v", c.Observability.SamplingRate)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultHTTPPort
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}

	if cfg.Searcher.Concurrency == 0 {
		cfg.Searcher.Concurrency = DefaultConcurrency
	}
	if cfg.Searcher.MaxRepos == 0 {
		cfg.Searcher.MaxRepos = DefaultMaxRepos
	}

	if cfg.Metadata.Provider == "" {
		cfg.Metadata.Provider = ProviderStatic
	}
	if cfg.Metadata.Revision == "" {
		cfg.Metadata.Revision = "HEAD"
	}
	if cfg.Metadata.CacheSize == 0 {
		cfg.Metadata.CacheSize = DefaultCacheSize
	}
	if cfg.Metadata.CacheTTL == 0 {
		cfg.Metadata.CacheTTL = Duration(DefaultCacheTTL)
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = DefaultSubjectPrefix
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = DefaultServiceName
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
