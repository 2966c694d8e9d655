package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pool operations.
var (
	poolSessionsBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "render_pool_sessions_busy",
		Help: "Number of sessions currently held by a lease",
	})

	poolAcquireWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "render_pool_acquire_wait_seconds",
		Help:    "Time spent waiting for an idle session",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	})

	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "render_fetch_total",
		Help: "Total fetches by outcome",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "render_fetch_duration_seconds",
		Help:    "Fetch duration in seconds including retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	fetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "render_fetch_retries_total",
		Help: "Total number of fetch attempts after the first",
	})

	fetchExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "render_fetch_exhausted_total",
		Help: "Total number of fetches that exhausted every attempt",
	})

	sessionRecreationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "render_session_recreations_total",
		Help: "Total session recreations by result",
	}, []string{"result"})
)
