package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/search"
)

// requestCounts returns requests_total keyed by "endpoint status kind".
func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "reposearch.http.requests_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				endpoint, _ := dp.Attributes.Value(attribute.Key("endpoint"))
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				kind, _ := dp.Attributes.Value(attribute.Key("kind"))
				key := endpoint.AsString() + " " + status.Emit() + " " + kind.AsString()
				out[key] += dp.Value
			}
		}
	}
	return out
}

func newMetricsEcho(t *testing.T) (*echo.Echo, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m := NewHTTPMetricsWithProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), logging.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/search", func(c echo.Context) error {
		return searchError(&search.NetworkError{Repo: "api", Err: errors.New("connection reset")})
	})
	e.POST("/api/v1/search/commit", func(c echo.Context) error {
		return apiError(http.StatusBadRequest, search.KindInvalid, "commit field is required")
	})
	return e, reader
}

func TestHTTPMetrics_RecordsOutcome(t *testing.T) {
	e, reader := newMetricsEcho(t)

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/search"},
		{http.MethodPost, "/api/v1/search/commit"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	assert.Equal(t, map[string]int64{
		"/health 200 ":                              2,
		"/api/v1/search 502 network":                1,
		"/api/v1/search/commit 400 invalid_request": 1,
	}, requestCounts(t, reader))
}

func TestHTTPMetrics_LatencyAndInFlight(t *testing.T) {
	e, reader := newMetricsEcho(t)
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var sawLatency, sawInFlight bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "reposearch.http.request_duration_seconds":
				hist := m.Data.(metricdata.Histogram[float64])
				require.Len(t, hist.DataPoints, 1)
				assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
				sawLatency = true
			case "reposearch.http.active_requests":
				sum := m.Data.(metricdata.Sum[int64])
				require.Len(t, sum.DataPoints, 1)
				assert.Equal(t, int64(0), sum.DataPoints[0].Value)
				sawInFlight = true
			}
		}
	}
	assert.True(t, sawLatency)
	assert.True(t, sawInFlight)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/", normalizePath(""))
	assert.Equal(t, "/api/v1/search", normalizePath("/api/v1/search"))
}
