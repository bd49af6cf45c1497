package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConnectionGaugeHelpers(t *testing.T) {
	before := testutil.ToFloat64(ActiveConnections)

	IncConnection()
	IncConnection()
	assert.Equal(t, before+2, testutil.ToFloat64(ActiveConnections))

	DecConnection()
	assert.Equal(t, before+1, testutil.ToFloat64(ActiveConnections))
}

func TestVectorsAcceptLabels(t *testing.T) {
	// promauto registers against the global registry; incrementing without
	// panic is the registration check.
	FramesReceived.WithLabelValues("42").Inc()
	EventsDispatched.WithLabelValues("dispatched").Inc()
	DroppedMessages.WithLabelValues("mailbox_full").Inc()
	RateLimitExceeded.WithLabelValues("ip").Inc()
	CircuitBreakerState.WithLabelValues("socketio-bus").Set(1)
	RoomMembers.WithLabelValues("lobby").Set(3)

	assert.GreaterOrEqual(t, testutil.ToFloat64(FramesReceived.WithLabelValues("42")), float64(1))
	assert.Equal(t, float64(3), testutil.ToFloat64(RoomMembers.WithLabelValues("lobby")))
}
