package mcp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/search"
)

const instrumentationName = "github.com/fyrsmithlabs/reposearch/internal/mcp"

// Metrics records tool calls. Failed calls are labeled with their search
// failure kind.
type Metrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewMetrics creates tool metrics on the global meter provider.
func NewMetrics(logger *logging.Logger) *Metrics {
	return NewMetricsWithProvider(otel.GetMeterProvider(), logger)
}

// NewMetricsWithProvider creates tool metrics on mp. Instruments that fail to
// register are logged and skipped.
func NewMetricsWithProvider(mp metric.MeterProvider, logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	meter := mp.Meter(instrumentationName)
	ctx := context.Background()
	m := &Metrics{}

	var err error
	m.calls, err = meter.Int64Counter(
		"reposearch.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool calls by tool"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create invocations counter", zap.Error(err))
	}

	m.failures, err = meter.Int64Counter(
		"reposearch.mcp.tool.errors_total",
		metric.WithDescription("Failed MCP tool calls by tool and failure kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create errors counter", zap.Error(err))
	}

	m.latency, err = meter.Float64Histogram(
		"reposearch.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call latency by tool"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.inFlight, err = meter.Int64UpDownCounter(
		"reposearch.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls currently running"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create active requests gauge", zap.Error(err))
	}
	return m
}

// Track marks a call to tool as running. The returned func ends the call and
// records its outcome.
func (m *Metrics) Track(ctx context.Context, tool string) func(err error) {
	toolAttr := metric.WithAttributes(attribute.String("tool", tool))
	start := time.Now()
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, toolAttr)
	}

	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, toolAttr)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, toolAttr)
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), toolAttr)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("kind", categorizeError(err)),
			))
		}
	}
}

// categorizeError returns the failure kind of err as a metric label.
func categorizeError(err error) string {
	if err == nil {
		return ""
	}
	return string(search.KindOf(err))
}
