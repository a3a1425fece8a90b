package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tabinfer",
		Name:      "runs_total",
		Help:      "Engine runs by algorithm and outcome code.",
	}, []string{"algorithm", "code"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tabinfer",
		Name:      "run_duration_seconds",
		Help:      "Wall time of engine runs, excluding the wait for a compute slot.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"algorithm"})

	rowsLoaded = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tabinfer",
		Name:      "dataset_rows",
		Help:      "Data rows per loaded table.",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 9),
	})

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tabinfer",
		Name:      "active_runs",
		Help:      "Engine runs currently holding a compute slot.",
	})

	reductSubsets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tabinfer",
		Name:      "reduct_subsets_evaluated_total",
		Help:      "Attribute subsets whose positive region was computed.",
	})

	runsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tabinfer",
		Name:      "history_runs_purged_total",
		Help:      "Run history records removed by retention.",
	})
)
