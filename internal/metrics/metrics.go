package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session lifecycle
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "draw_sessions_active",
		Help: "The current number of sessions held in the in-memory registry.",
	})
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "draw_sessions_created_total",
		Help: "The total number of sessions created.",
	})
	SessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "draw_sessions_expired_total",
		Help: "The total number of sessions removed by the expiry sweep.",
	})
	ParticipantsJoinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "draw_participants_joined_total",
		Help: "The total number of successful joins.",
	})
	DrawsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "draw_draws_started_total",
		Help: "The total number of draws started.",
	})

	// Streaming
	StreamConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "draw_stream_connections_active",
		Help: "The current number of subscribed stream connections.",
	})
	EventsBroadcastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draw_events_broadcast_total",
		Help: "The total number of events broadcast to session subscribers.",
	}, []string{"event"})

	// Persistence
	PersistFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draw_persist_failures_total",
		Help: "The total number of failed session persistence attempts.",
	}, []string{"backend"})
	VersionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "draw_version_conflicts_total",
		Help: "The total number of optimistic-concurrency conflicts detected on write-back.",
	})
)
