package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/search"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/reposearch/internal/http"

// HTTPMetrics records request counts, latency and in-flight requests per
// route. Failed requests also carry the failure kind.
type HTTPMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTP metrics on the global meter provider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	return NewHTTPMetricsWithProvider(otel.GetMeterProvider(), logger)
}

// NewHTTPMetricsWithProvider creates HTTP metrics on mp. Instruments that
// fail to register are logged and skipped.
func NewHTTPMetricsWithProvider(mp metric.MeterProvider, logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	meter := mp.Meter(httpInstrumentationName)
	ctx := context.Background()
	m := &HTTPMetrics{}

	var err error
	m.requests, err = meter.Int64Counter(
		"reposearch.http.requests_total",
		metric.WithDescription("HTTP requests by method, route, status and failure kind"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create requests counter", zap.Error(err))
	}

	// Searches fan out to many repositories, so buckets reach past 30s.
	m.latency, err = meter.Float64Histogram(
		"reposearch.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.inFlight, err = meter.Int64UpDownCounter(
		"reposearch.http.active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create active requests gauge", zap.Error(err))
	}
	return m
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
//
// Echo renders handler errors after the middleware chain returns, so the
// status of a failed request is taken from the error itself.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			status, kind := requestOutcome(c, err)
			attrs := []attribute.KeyValue{
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", status),
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
			}
			if m.requests != nil {
				m.requests.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("kind", kind))...))
			}
			return err
		}
	}
}

// requestOutcome returns the status the client will see and the failure
// kind, empty on success.
func requestOutcome(c echo.Context, err error) (int, string) {
	if err == nil {
		return c.Response().Status, ""
	}
	var ae *apiErr
	if errors.As(err, &ae) {
		return ae.status, string(ae.kind)
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed {
			return he.Code, string(search.KindInvalid)
		}
		return he.Code, string(search.KindUnknown)
	}
	kind := search.KindOf(err)
	return StatusFor(kind), string(kind)
}

// normalizePath maps the matched route to a metric label. Echo reports the
// route template, and unmatched requests have no route.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
