package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the socket.io middleware.
//
// Naming convention: namespace_subsystem_name
// - namespace: socketio (application-level grouping)
// - subsystem: engine, rooms, bus (feature-level grouping)
// - name: specific metric (connections_active, frames_received_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, members)
// - Counter: Cumulative events (frames, drops, bus traffic)

var (
	// ActiveConnections tracks the current number of live sessions.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "socketio",
		Subsystem: "engine",
		Name:      "connections_active",
		Help:      "Current number of live socket.io sessions",
	})

	// ActiveRooms tracks the number of rooms with at least one member.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "socketio",
		Subsystem: "rooms",
		Name:      "rooms_active",
		Help:      "Current number of rooms with at least one member",
	})

	// RoomMembers tracks membership per room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "socketio",
		Subsystem: "rooms",
		Name:      "members_count",
		Help:      "Number of sockets joined to each room",
	}, []string{"room_id"})

	// FramesReceived counts inbound text frames by prefix.
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "engine",
		Name:      "frames_received_total",
		Help:      "Total inbound frames by Engine.IO/Socket.IO prefix",
	}, []string{"prefix"})

	// EventsDispatched counts application events handed to listeners.
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "engine",
		Name:      "events_total",
		Help:      "Total application events dispatched to listeners",
	}, []string{"status"})

	// DroppedMessages counts messages discarded by bounded queues.
	DroppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "engine",
		Name:      "dropped_messages_total",
		Help:      "Total messages dropped by bounded queues",
	}, []string{"reason"})

	// BusPublished counts envelopes published to the external bus.
	BusPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "bus",
		Name:      "published_total",
		Help:      "Total envelopes published to the pub/sub bus",
	})

	// BusReceived counts envelopes received from the external bus.
	BusReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "bus",
		Name:      "received_total",
		Help:      "Total envelopes received from the pub/sub bus",
	})

	// BusDecodeErrors counts envelopes dropped because they failed to decode.
	BusDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "bus",
		Name:      "decode_errors_total",
		Help:      "Total bus envelopes dropped due to decode errors",
	})

	// CircuitBreakerState reports the publish breaker state (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "socketio",
		Subsystem: "bus",
		Name:      "circuit_breaker_state",
		Help:      "State of the bus circuit breaker (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// RateLimitExceeded counts rejected upgrade attempts.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "engine",
		Name:      "rate_limit_exceeded_total",
		Help:      "Total connection attempts rejected by the rate limiter",
	}, []string{"limit_type"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
