package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/socketio/internal/v1/rooms"
)

type captureEndpoint struct {
	sid string

	mu       sync.Mutex
	received [][2]string
}

func (c *captureEndpoint) SID() string { return c.sid }

func (c *captureEndpoint) Deliver(event, payload string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, [2]string{event, payload})
	return true
}

func (c *captureEndpoint) snapshot() [][2]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][2]string, len(c.received))
	copy(out, c.received)
	return out
}

func newTestAdapter(t *testing.T, mr *miniredis.Miniredis, reg *rooms.Registry) *Adapter {
	t.Helper()
	a, err := Connect(context.Background(), Options{
		Addr:     mr.Addr(),
		Channel:  "test-channel",
		Registry: reg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestConnect_PingClose(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestAdapter(t, mr, rooms.New())

	assert.Len(t, a.SendingID(), 30)
	assert.NoError(t, a.Ping(context.Background()))
	assert.NoError(t, a.Close())
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), Options{Addr: "localhost:1", Channel: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestIncoming_EnvelopeShape(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestAdapter(t, mr, rooms.New())

	ctx := context.Background()
	sub := a.client.Subscribe(ctx, "test-channel")
	defer func() { _ = sub.Close() }()
	time.Sleep(50 * time.Millisecond)

	a.Incoming("lobby", "chat", "hi")

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, "test-channel", env.Channel)
	assert.Equal(t, "lobby", env.RoomID)
	assert.Equal(t, "chat", env.Event)
	assert.Equal(t, "hi", env.Message)
	assert.Equal(t, a.SendingID(), env.SendingID)
}

// An envelope carrying our own sending_id must never reach a local socket.
func TestSubscribe_EchoSuppression(t *testing.T) {
	mr := miniredis.RunT(t)
	reg := rooms.New()
	a := newTestAdapter(t, mr, reg)

	ep := &captureEndpoint{sid: "local"}
	reg.Join("lobby", ep)

	ctx := context.Background()
	echo, _ := json.Marshal(Envelope{
		Channel:   "test-channel",
		RoomID:    "lobby",
		Event:     "chat",
		Message:   "echo",
		SendingID: a.SendingID(),
	})
	require.NoError(t, a.client.Publish(ctx, "test-channel", echo).Err())

	foreign, _ := json.Marshal(Envelope{
		Channel:   "test-channel",
		RoomID:    "lobby",
		Event:     "chat",
		Message:   "from-peer",
		SendingID: "another-process-id",
	})
	require.NoError(t, a.client.Publish(ctx, "test-channel", foreign).Err())

	require.Eventually(t, func() bool {
		return len(ep.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := ep.snapshot()
	assert.Equal(t, [2]string{"chat", "from-peer"}, got[0])
}

func TestSubscribe_DecodeErrorDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	reg := rooms.New()
	a := newTestAdapter(t, mr, reg)

	ep := &captureEndpoint{sid: "local"}
	reg.Join("lobby", ep)

	ctx := context.Background()
	require.NoError(t, a.client.Publish(ctx, "test-channel", "not-json").Err())

	valid, _ := json.Marshal(Envelope{
		Channel: "test-channel", RoomID: "lobby",
		Event: "chat", Message: "ok", SendingID: "peer",
	})
	require.NoError(t, a.client.Publish(ctx, "test-channel", valid).Err())

	require.Eventually(t, func() bool {
		return len(ep.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, [2]string{"chat", "ok"}, ep.snapshot()[0])
}

// Two adapters on the same channel behave like two server processes: the
// publisher's registry is untouched, the peer's registry receives the event.
func TestCrossProcessRelay(t *testing.T) {
	mr := miniredis.RunT(t)

	regP1 := rooms.New()
	regP2 := rooms.New()
	p1 := newTestAdapter(t, mr, regP1)
	p2 := newTestAdapter(t, mr, regP2)
	require.NotEqual(t, p1.SendingID(), p2.SendingID())

	local := &captureEndpoint{sid: "p1-socket"}
	remote := &captureEndpoint{sid: "p2-socket"}
	regP1.Join("r", local)
	regP2.Join("r", remote)

	p1.Incoming("r", "e", "v")

	require.Eventually(t, func() bool {
		return len(remote.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, [2]string{"e", "v"}, remote.snapshot()[0])

	// The bus never re-injects into the publishing process; local fan-out
	// is the session engine's responsibility.
	assert.Empty(t, local.snapshot())
}

func TestIncoming_DropOldestOnOverflow(t *testing.T) {
	// Bare adapter with no loops running, so the queue fills up.
	a := &Adapter{queue: make(chan outbound, 2)}

	a.Incoming("r", "e", "1")
	a.Incoming("r", "e", "2")
	a.Incoming("r", "e", "3")

	first := <-a.queue
	second := <-a.queue
	assert.Equal(t, "2", first.payload)
	assert.Equal(t, "3", second.payload)
	assert.Empty(t, a.queue)
}
