// Package metrics exposes the render pool's Prometheus metrics.
// Collectors are defined next to the code they measure (pool, batch, cache)
// and registered via promauto; this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all render pool collectors use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler serves.
var Gatherer = prometheus.DefaultGatherer

// Handler returns an HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Pool Metrics (pkg/pool):
//   - render_pool_sessions_busy (Gauge): Sessions currently held by a lease
//   - render_pool_acquire_wait_seconds (Histogram): Time spent waiting for an idle session
//   - render_session_recreations_total{result} (Counter): Session relaunches by result (ok, failed)
//
// Fetch Metrics (pkg/pool):
//   - render_fetch_total{status} (Counter): Fetches by outcome (ok, exhausted, aborted)
//   - render_fetch_duration_seconds (Histogram): Fetch duration including retries
//   - render_fetch_retries_total (Counter): Attempts after the first
//   - render_fetch_exhausted_total (Counter): Fetches that used every attempt
//
// Batch Metrics (pkg/batch):
//   - render_batch_results_total{status} (Counter): Results by status (ok, failed, parse_error)
//   - render_batch_waves_total (Counter): Batches scheduled
//
// Cache Metrics (pkg/cache):
//   - render_cache_hits_total (Counter): Cache hits
//   - render_cache_misses_total (Counter): Cache misses
//   - render_cache_stored_bytes_total (Counter): Bytes written to Redis
//   - render_cache_skipped_total{reason} (Counter): Rendered pages not stored
//   - render_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Session saturation
//   render_pool_sessions_busy / <pool size>
//
//   # Recovery rate
//   rate(render_session_recreations_total{result="ok"}[5m])
//
//   # Exhaustion ratio
//   rate(render_fetch_exhausted_total[5m]) / rate(render_fetch_total[5m])
//
//   # P95 fetch latency
//   histogram_quantile(0.95, rate(render_fetch_duration_seconds_bucket[5m]))
//
//   # Cache hit rate
//   rate(render_cache_hits_total[5m]) /
//   (rate(render_cache_hits_total[5m]) + rate(render_cache_misses_total[5m]))
