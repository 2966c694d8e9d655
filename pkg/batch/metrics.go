package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "render_batch_results_total",
		Help: "Total orchestrated results by status",
	}, []string{"status"})

	batchWaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "render_batch_waves_total",
		Help: "Total number of batches scheduled",
	})
)
