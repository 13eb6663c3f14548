package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime metrics for socket fan-out, call lifecycle and presence
var (
	// Connection metrics
	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_ws_connections_active",
		Help: "Number of open WebSocket connections",
	})

	WSConnectionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_ws_connections_rejected_total",
		Help: "Total number of rejected WebSocket connection attempts",
	}, []string{"reason"}) // "unauthorized", "capacity", "upgrade"

	// Delivery metrics
	WSFramesDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_ws_frames_delivered_total",
		Help: "Total number of frames queued to connections",
	})

	WSFramesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_ws_frames_dropped_total",
		Help: "Total number of frames dropped for slow or closed connections",
	})

	WSSlowConsumerClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_ws_slow_consumer_closed_total",
		Help: "Total number of connections closed because their send queue was full",
	})

	// Command metrics
	WSCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_ws_commands_total",
		Help: "Total number of client commands handled",
	}, []string{"command", "status"}) // status: "ok", "error"

	// Call lifecycle metrics
	CallTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_call_transitions_total",
		Help: "Total number of call status transitions",
	}, []string{"from", "to"})

	CallReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_call_reconcile_duration_seconds",
		Help:    "Time taken by a reconciliation sweep",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	CallReconcileSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_call_reconcile_skipped_total",
		Help: "Total number of reconciliation ticks skipped because a sweep was in progress",
	})

	// Presence metrics
	PresenceUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_presence_updates_total",
		Help: "Total number of presence mutations",
	}, []string{"source", "status"})

	PresenceOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_presence_online_users",
		Help: "Number of users with a connection-derived status other than offline",
	})
)
