package completion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var attemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "memory_chat",
		Subsystem: "completion",
		Name:      "attempts_total",
		Help:      "Completion attempts by outcome (success, transient, permanent).",
	},
	[]string{"outcome"},
)
