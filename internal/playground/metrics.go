package playground

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playground",
		Name:      "sessions_total",
		Help:      "Session state transitions, labeled by the state entered.",
	}, []string{"state"})

	SyncWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playground",
		Name:      "sync_writes_total",
		Help:      "Debounced document writes into the sandbox, labeled by result.",
	}, []string{"result"})

	ResolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "playground",
		Name:      "endpoint_resolve_seconds",
		Help:      "Time from dev server spawn to a resolved preview URL.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})
)

// Collectors returns the playground collectors for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{SessionsTotal, SyncWritesTotal, ResolveDuration}
}
