package logging

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/reposearch/internal/config"
)

// maxPatternLen bounds redaction patterns; they run against every string field.
const maxPatternLen = 200

// Config holds logging configuration.
type Config struct {
	Level  zapcore.Level `koanf:"level"`
	Format string        `koanf:"format"`
	Output OutputConfig  `koanf:"output"`

	// Sampling throttles repetitive entries per level. Error and above
	// are never sampled.
	Sampling SamplingConfig `koanf:"sampling"`

	// Caller adds the call site to each entry.
	Caller bool `koanf:"caller"`

	// StacktraceLevel attaches stack traces at and above this level.
	StacktraceLevel zapcore.Level `koanf:"stacktrace_level"`

	// Fields are attached to every entry, e.g. service and version.
	Fields map[string]string `koanf:"fields"`

	Redaction RedactionConfig `koanf:"redaction"`
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool `koanf:"stdout"`
	OTEL   bool `koanf:"otel"`

	// Writer replaces stdout for the encoded output when set.
	Writer zapcore.WriteSyncer `koanf:"-"`
}

// SamplingConfig controls log volume reduction.
type SamplingConfig struct {
	Enabled bool                                  `koanf:"enabled"`
	Tick    config.Duration                       `koanf:"tick"`
	Levels  map[zapcore.Level]LevelSamplingConfig `koanf:"levels"`
}

// LevelSamplingConfig keeps the first Initial entries with the same message
// per tick, then every Thereafter-th. Thereafter 0 drops the rest.
type LevelSamplingConfig struct {
	Initial    int `koanf:"initial"`
	Thereafter int `koanf:"thereafter"`
}

// RedactionConfig lists field names and value patterns that never reach
// the encoded output.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Fields   []string `koanf:"fields"`
	Patterns []string `koanf:"patterns"`
}

// NewDefaultConfig returns JSON logging to stdout at info with sampling and
// redaction enabled.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    config.Duration(time.Second),
			Levels:  DefaultLevelSampling(),
		},
		Caller:          true,
		StacktraceLevel: zapcore.ErrorLevel,
		Fields: map[string]string{
			"service": "reposearchd",
		},
		Redaction: DefaultRedaction(),
	}
}

// DefaultLevelSampling samples debug output hardest. A search over many
// repositories logs one debug entry per repository.
func DefaultLevelSampling() map[zapcore.Level]LevelSamplingConfig {
	return map[zapcore.Level]LevelSamplingConfig{
		TraceLevel:         {Initial: 1},
		zapcore.DebugLevel: {Initial: 50, Thereafter: 10},
		zapcore.InfoLevel:  {Initial: 100, Thereafter: 10},
		zapcore.WarnLevel:  {Initial: 100, Thereafter: 100},
	}
}

// DefaultRedaction covers GitHub and NATS credentials and URLs with userinfo.
func DefaultRedaction() RedactionConfig {
	return RedactionConfig{
		Enabled: true,
		Fields: []string{
			"token", "github_token", "nats_token", "password",
			"secret", "authorization", "credential",
		},
		Patterns: []string{
			`(?i)bearer\s+\S+`,
			`\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{20,}`,
			`\bgithub_pat_[A-Za-z0-9_]{20,}`,
			`://[^/\s:@]+:[^/\s@]+@`,
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout or otel)")
	}

	if c.Sampling.Enabled {
		if c.Sampling.Tick.Duration() <= 0 {
			return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
		}
		for lvl, s := range c.Sampling.Levels {
			if lvl >= zapcore.ErrorLevel {
				return fmt.Errorf("level %s cannot be sampled", lvl)
			}
			if s.Initial < 0 || s.Thereafter < 0 {
				return fmt.Errorf("sampling for %s must not be negative", lvl)
			}
		}
	}

	if c.Redaction.Enabled {
		if _, err := compilePatterns(c.Redaction.Patterns); err != nil {
			return err
		}
	}

	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}

	return nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
