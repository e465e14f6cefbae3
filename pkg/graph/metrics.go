package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "maestro",
		Subsystem: "graph",
		Name:      "node_duration_seconds",
		Help:      "Execution time per graph node.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"node"})

	nodeRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maestro",
		Subsystem: "graph",
		Name:      "node_retries_total",
		Help:      "Retried node attempts after transient failures.",
	}, []string{"node"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maestro",
		Subsystem: "graph",
		Name:      "runs_total",
		Help:      "Completed graph runs by outcome.",
	}, []string{"status"})

	runSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "maestro",
		Subsystem: "graph",
		Name:      "run_steps",
		Help:      "Node executions per run.",
		Buckets:   prometheus.LinearBuckets(1, 2, 12),
	})
)
