package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/search"
)

// sumByAttr collects the int64 sum called name keyed by the value of attr.
func sumByAttr(t *testing.T, reader *sdkmetric.ManualReader, name, attr string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(attr))
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func newTestMetrics() (*Metrics, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return NewMetricsWithProvider(mp, logging.NewNop()), reader
}

func TestMetrics_Track(t *testing.T) {
	m, reader := newTestMetrics()
	ctx := context.Background()

	m.Track(ctx, toolSearchRepos)(nil)
	m.Track(ctx, toolSearchRepos)(fmt.Errorf("wrapped: %w", search.ErrInvalidPattern))
	m.Track(ctx, toolSearchCommit)(&search.RemoteError{Repo: "api", StatusCode: 500})

	assert.Equal(t, map[string]int64{toolSearchRepos: 2, toolSearchCommit: 1},
		sumByAttr(t, reader, "reposearch.mcp.tool.invocations_total", "tool"))
	assert.Equal(t, map[string]int64{"invalid_request": 1, "remote": 1},
		sumByAttr(t, reader, "reposearch.mcp.tool.errors_total", "kind"))
	assert.Equal(t, map[string]int64{toolSearchRepos: 0, toolSearchCommit: 0},
		sumByAttr(t, reader, "reposearch.mcp.tool.active_requests", "tool"))
}

func TestMetrics_InFlight(t *testing.T) {
	m, reader := newTestMetrics()
	ctx := context.Background()

	first := m.Track(ctx, toolSearchRepos)
	second := m.Track(ctx, toolSearchRepos)
	first(nil)

	assert.Equal(t, int64(1), sumByAttr(t, reader, "reposearch.mcp.tool.active_requests", "tool")[toolSearchRepos])
	second(nil)
	assert.Equal(t, int64(0), sumByAttr(t, reader, "reposearch.mcp.tool.active_requests", "tool")[toolSearchRepos])
}

func TestMetrics_ToolErrorsCarryKind(t *testing.T) {
	m, reader := newTestMetrics()
	server := &Server{searcher: &stubSearcher{}, metrics: m, logger: logging.NewNop()}

	_, _, err := server.handleSearchCommit(context.Background(), nil, searchCommitInput{Pattern: "x", Repo: "api"})
	require.Error(t, err)

	assert.Equal(t, map[string]int64{"invalid_request": 1},
		sumByAttr(t, reader, "reposearch.mcp.tool.errors_total", "kind"))
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"invalid pattern", fmt.Errorf("search_repos: %w", search.ErrInvalidPattern), "invalid_request"},
		{"empty commit", toolError(search.ErrEmptyCommit), "invalid_request"},
		{"network", toolError(&search.NetworkError{Repo: "a", Err: errors.New("reset")}), "network"},
		{"remote", &search.RemoteError{Repo: "a", StatusCode: 500}, "remote"},
		{"cancellation", &search.CancellationError{Cause: context.Canceled}, "cancellation"},
		{"generic error", errors.New("something went wrong"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categorizeError(tt.err))
		})
	}
}
