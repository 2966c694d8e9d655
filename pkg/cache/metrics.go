package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "render_cache_hits_total",
			Help: "Total number of rendered page cache hits",
		},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "render_cache_misses_total",
			Help: "Total number of rendered page cache misses",
		},
	)

	// CacheStoredBytes tracks bytes written to Redis
	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "render_cache_stored_bytes_total",
			Help: "Total bytes of rendered pages written to the cache",
		},
	)

	// CacheSkipped tracks pages that were fetched but not stored
	CacheSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_cache_skipped_total",
			Help: "Total number of rendered pages not stored in the cache",
		},
		[]string{"reason"}, // "status", "headers", "empty"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
