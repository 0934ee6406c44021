// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline. The /metrics endpoint is mounted by the ops server.
package metrics

import (
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCyclesTotal counts completed poll cycles by outcome
	// (completed, aborted, skipped).
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hatchdesk",
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Total poll cycles by outcome",
		},
		[]string{"outcome"},
	)

	// PollCycleDuration measures wall time of one poll cycle.
	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hatchdesk",
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// MessagesProcessedTotal counts per-message pipeline results
	// (ticket, standby, duplicate, discarded, failed).
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hatchdesk",
			Subsystem: "poller",
			Name:      "messages_processed_total",
			Help:      "Messages processed by result",
		},
		[]string{"result"},
	)

	// NotificationsTotal counts outbound notices by kind and status
	// (sent, failed, dropped).
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hatchdesk",
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Outbound notifications by kind and status",
		},
		[]string{"kind", "status"},
	)

	// SchedulerOverlapsDropped counts ticks skipped because the previous
	// run of the same inbox was still in flight.
	SchedulerOverlapsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hatchdesk",
			Subsystem: "scheduler",
			Name:      "overlaps_dropped_total",
			Help:      "Scheduler ticks dropped due to an in-flight run",
		},
	)

	// DBConnectionsOpen tracks open database connections.
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hatchdesk",
			Subsystem: "db",
			Name:      "connections_open",
			Help:      "Number of open database connections",
		},
	)

	// DBConnectionsInUse tracks connections currently in use.
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hatchdesk",
			Subsystem: "db",
			Name:      "connections_in_use",
			Help:      "Number of database connections currently in use",
		},
	)
)

// ObserveDBStats copies current pool stats into the gauges. Called
// periodically by the ops server.
func ObserveDBStats(db *sqlx.DB) {
	stats := db.Stats()
	DBConnectionsOpen.Set(float64(stats.OpenConnections))
	DBConnectionsInUse.Set(float64(stats.InUse))
}
