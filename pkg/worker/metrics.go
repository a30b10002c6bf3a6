package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memory_chat",
			Subsystem: "worker",
			Name:      "submitted_total",
			Help:      "Jobs accepted into the pool queue.",
		},
		[]string{"pool"},
	)

	queueFullTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memory_chat",
			Subsystem: "worker",
			Name:      "queue_full_total",
			Help:      "Submissions rejected because the queue stayed full.",
		},
		[]string{"pool"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memory_chat",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Finished jobs by outcome.",
		},
		[]string{"pool", "outcome"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "memory_chat",
			Subsystem: "worker",
			Name:      "run_duration_seconds",
			Help:      "Job execution latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pool"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "memory_chat",
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Jobs waiting in the queue.",
		},
		[]string{"pool"},
	)
)
