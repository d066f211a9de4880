package search

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for cross-repository searches.
type Metrics struct {
	SearchesTotal     *prometheus.CounterVec
	SearchDuration    prometheus.Histogram
	RepoSearchesTotal *prometheus.CounterVec
	ActiveWorkers     prometheus.Gauge
	DiscardedResults  prometheus.Counter
	ReposPerSearch    prometheus.Histogram
	MatchesPerSearch  prometheus.Histogram
}

// NewMetrics creates and registers the search metrics once per process.
//
// Metrics:
//   - reposearch_searches_total{outcome} - searches by "success" or error kind
//   - reposearch_search_duration_seconds - end-to-end search latency
//   - reposearch_repo_searches_total{result} - per-repository outcomes
//   - reposearch_active_workers - workers currently running
//   - reposearch_discarded_results_total - in-flight results dropped after cancellation
//   - reposearch_repos_per_search - repositories requested per search
//   - reposearch_matches_per_search - matched files per successful search
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsWith(prometheus.DefaultRegisterer)
	})

	return globalMetrics
}

// NewMetricsWith registers the search metrics on reg. Each registry can only
// hold one set.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposearch_searches_total",
				Help: "Total number of cross-repository searches by outcome",
			},
			[]string{"outcome"},
		),

		SearchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reposearch_search_duration_seconds",
				Help:    "Duration of cross-repository searches in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),

		RepoSearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposearch_repo_searches_total",
				Help: "Total number of single-repository searches by result",
			},
			[]string{"result"},
		),

		ActiveWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reposearch_active_workers",
				Help: "Number of search workers currently running",
			},
		),

		DiscardedResults: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reposearch_discarded_results_total",
				Help: "Results of in-flight calls dropped after the batch was cancelled",
			},
		),

		ReposPerSearch: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reposearch_repos_per_search",
				Help:    "Number of repositories requested per search",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),

		MatchesPerSearch: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reposearch_matches_per_search",
				Help:    "Number of matched files returned per successful search",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}
}
