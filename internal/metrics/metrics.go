// Package metrics exposes Prometheus instrumentation for the indexing
// pipeline and retrieval path.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registered collectors. Constructed once and passed to
// collaborators; never a package-level singleton.
type Metrics struct {
	registry *prometheus.Registry

	FilesFetched  prometheus.Counter
	FetchFailures prometheus.Counter
	FilesIndexed  prometheus.Counter
	RunsCompleted prometheus.Counter
	RunsFailed    prometheus.Counter
	SearchQueries prometheus.Counter
	ActiveRuns    prometheus.Gauge
}

// New creates a Metrics with all collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FilesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "repolens_files_fetched_total",
			Help: "File contents fetched from the repository host.",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "repolens_fetch_failures_total",
			Help: "File content fetches that failed after retries.",
		}),
		FilesIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "repolens_files_indexed_total",
			Help: "Files written to the search index.",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "repolens_index_runs_completed_total",
			Help: "Indexing runs that reached the completed state.",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "repolens_index_runs_failed_total",
			Help: "Indexing runs that reached the failed state.",
		}),
		SearchQueries: factory.NewCounter(prometheus.CounterOpts{
			Name: "repolens_search_queries_total",
			Help: "Free-text queries executed against the search index.",
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "repolens_active_index_runs",
			Help: "Indexing runs currently in flight.",
		}),
	}
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
