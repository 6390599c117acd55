// Package metrics documents the Prometheus metrics of the Confluence client
// and exposes them over HTTP. The metrics themselves are declared with
// promauto in the packages that record them (client, cache, ratelimit,
// pagination, search, async) so that no package depends on this one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all client metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics
//
// Requests (pkg/client):
//   - confluence_requests_total{endpoint, status} (Counter)
//   - confluence_request_duration_seconds{endpoint} (Histogram)
//   - confluence_errors_total{class} (Counter): client, auth, server, rate_limit, network
//   - confluence_retries_total{error_class} (Counter)
//   - confluence_retry_backoff_seconds{error_class} (Histogram)
//   - confluence_retry_exhausted_total{error_class} (Counter)
//
// Cache (pkg/cache):
//   - confluence_cache_lookups_total{result} (Counter): fresh, stale, miss
//   - confluence_cache_revalidations_total{outcome} (Counter): sent, not_modified
//   - confluence_cache_written_bytes_total (Counter)
//   - confluence_cache_purged_entries_total (Counter)
//   - confluence_cache_errors_total{operation} (Counter)
//
// Rate limiting (pkg/ratelimit):
//   - confluence_rate_limit_remaining (Gauge): last X-RateLimit-Remaining
//   - confluence_rate_limit_blocks_total (Counter): requests refused while a Retry-After window is open
//   - confluence_rate_limit_waits_total{reason} (Counter)
//
// Pagination and search (pkg/pagination, pkg/search, pkg/async):
//   - confluence_pages_fetched_total{mode} (Counter): first, explicit, synthetic
//   - confluence_searches_total{status} (Counter): ok, error, invalid
//   - confluence_search_results_total (Counter)
//   - confluence_async_tasks_in_flight (Gauge)
//   - confluence_async_tasks_total{status} (Counter)
//
// Example queries:
//
//	# Cache hit rate
//	sum(rate(confluence_cache_lookups_total{result="fresh"}[5m])) /
//	sum(rate(confluence_cache_lookups_total[5m]))
//
//	# Pages per search
//	sum(rate(confluence_pages_fetched_total[5m])) / sum(rate(confluence_searches_total{status="ok"}[5m]))
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(confluence_request_duration_seconds_bucket[5m]))
