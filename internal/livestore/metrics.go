package livestore

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	snapshotsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livestore_snapshots_applied_total",
			Help: "Snapshots that replaced a store's task list",
		},
	)
	staleSnapshots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livestore_stale_snapshots_dropped_total",
			Help: "Snapshots dropped because their subscription was already cancelled",
		},
	)
	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestore_mutations_total",
			Help: "Task mutations by operation and result",
		},
		[]string{"op", "result"},
	)
	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livestore_active_subscriptions",
			Help: "Open task subscriptions",
		},
	)
)

func init() {
	prometheus.MustRegister(snapshotsApplied)
	prometheus.MustRegister(staleSnapshots)
	prometheus.MustRegister(mutations)
	prometheus.MustRegister(activeSubscriptions)
}
