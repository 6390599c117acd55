package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_cache_lookups_total",
			Help: "Response cache lookups by result (fresh, stale, miss)",
		},
		[]string{"result"},
	)

	// revalidations counts conditional requests by outcome (sent, not_modified).
	revalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_cache_revalidations_total",
			Help: "Conditional requests sent for stale entries, by outcome",
		},
		[]string{"outcome"},
	)

	writtenBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "confluence_cache_written_bytes_total",
			Help: "Bytes written to the response cache",
		},
	)

	purged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "confluence_cache_purged_entries_total",
			Help: "Entries removed by per-user purges",
		},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_cache_errors_total",
			Help: "Response cache operation errors",
		},
		[]string{"operation"}, // get, set, delete, purge
	)
)

// RevalidationSent records a conditional request issued for a stale entry.
func RevalidationSent() {
	revalidations.WithLabelValues("sent").Inc()
}
