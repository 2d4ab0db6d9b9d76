// Package metrics holds the Prometheus collectors the Ingester Loop and
// Read API publish on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every collector behind one struct so callers inject it
// rather than reaching for package-level globals.
type Registry struct {
	BlocksCommitted  prometheus.Counter
	BlocksSkipped    prometheus.Counter
	BatchDuration    prometheus.Histogram
	RetryTotal       *prometheus.CounterVec
	APIRequestsTotal *prometheus.CounterVec
}

// NewRegistry constructs and registers every collector against reg. Pass
// prometheus.DefaultRegisterer so the collectors are served by the
// package-level promhttp.Handler() mounted at GET /metrics.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		BlocksCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "indexer_blocks_committed_total",
			Help: "Blocks whose rows and checkpoint were committed.",
		}),
		BlocksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "indexer_blocks_skipped_total",
			Help: "Blocks the provider reported missing (not committed as progress).",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexer_batch_duration_seconds",
			Help:    "Wall-clock time to process one ingester batch.",
			Buckets: prometheus.DefBuckets,
		}),
		RetryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "indexer_rpc_retries_total",
			Help: "Retries issued by the block assembler, by kind.",
		}, []string{"kind"}),
		APIRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Read API requests, by route and status class.",
		}, []string{"route", "status"}),
	}
}
