package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// otelScope is the instrumentation scope of bridged log records.
const otelScope = "github.com/fyrsmithlabs/reposearch"

// newCore tees the encoded output and the OTEL bridge, then applies sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Output.Stdout {
		enc := newEncoder(cfg.Format)
		if cfg.Redaction.Enabled {
			redacting, err := NewRedactingEncoder(enc, cfg.Redaction)
			if err != nil {
				return nil, err
			}
			enc = redacting
		}
		ws := cfg.Output.Writer
		if ws == nil {
			ws = zapcore.Lock(os.Stdout)
		}
		cores = append(cores, zapcore.NewCore(enc, ws, cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		bridge := otelzap.NewCore(otelScope, otelzap.WithLoggerProvider(otelProvider))
		cores = append(cores, &levelRange{Core: bridge, min: cfg.Level, max: zapcore.FatalLevel})
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("no output available: stdout disabled and no otel provider")
	}

	core := zapcore.NewTee(cores...)
	if cfg.Sampling.Enabled {
		core = newSampledCore(core, cfg.Sampling)
	}
	return core, nil
}

func newEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = encodeLevel

	if format == "console" {
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// encodeLevel renders TraceLevel as "trace" instead of zap's "Level(-2)".
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}

// newSampledCore gives every configured level its own sampler. Levels without
// a sampling entry and Error and above pass through unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	tick := cfg.Tick.Duration()
	cores := make([]zapcore.Core, 0, len(cfg.Levels)+1)

	sampled := make(map[zapcore.Level]bool, len(cfg.Levels))
	for lvl, s := range cfg.Levels {
		if lvl >= zapcore.ErrorLevel {
			continue
		}
		sampled[lvl] = true
		only := &levelRange{Core: core, min: lvl, max: lvl}
		cores = append(cores, zapcore.NewSamplerWithOptions(only, tick, s.Initial, s.Thereafter))
	}

	cores = append(cores, &levelFilter{Core: core, skip: sampled})
	return zapcore.NewTee(cores...)
}

// levelRange passes entries whose level lies in [min, max].
type levelRange struct {
	zapcore.Core
	min, max zapcore.Level
}

func (c *levelRange) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *levelRange) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelRange) With(fields []zapcore.Field) zapcore.Core {
	return &levelRange{Core: c.Core.With(fields), min: c.min, max: c.max}
}

// levelFilter passes entries whose level is not in skip.
type levelFilter struct {
	zapcore.Core
	skip map[zapcore.Level]bool
}

func (c *levelFilter) Enabled(lvl zapcore.Level) bool {
	return !c.skip[lvl] && c.Core.Enabled(lvl)
}

func (c *levelFilter) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilter) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilter{Core: c.Core.With(fields), skip: c.skip}
}
