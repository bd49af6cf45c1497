// Package socketio implements the WebSocket session engine: the Engine.IO
// handshake, per-connection session actors, event listener dispatch, and
// room-scoped emits with optional cross-process relay through an installed
// bus adapter.
package socketio

import (
	"context"

	"github.com/relaypoint/socketio/internal/v1/adapter"
	"github.com/relaypoint/socketio/internal/v1/rooms"
)

// Handler is an application event listener. It runs on its own goroutine and
// must treat the Socket as the only channel back to the session.
type Handler func(ctx context.Context, s *Socket, payload string) error

// ConnectHandler runs once per connection, right after the opening frames
// are sent. It is where listeners are registered.
type ConnectHandler func(s *Socket) error

// Socket is the façade handed to application handlers. It is a cheap value
// carrying the session id, a room snapshot, and the session's mailbox; it is
// safe to use from any goroutine and after the session has closed, at which
// point its operations become no-ops.
type Socket struct {
	id       string
	session  *session
	rooms    []string
	registry *rooms.Registry
}

// ID returns the session id.
func (s *Socket) ID() string { return s.id }

// Rooms returns the rooms this socket belonged to when the Socket was
// created. The socket's own id is always first.
func (s *Socket) Rooms() []string {
	out := make([]string, len(s.rooms))
	copy(out, s.rooms)
	return out
}

// On registers a listener for an event. Multiple listeners may be
// registered for the same event; all of them fire.
func (s *Socket) On(event string, h Handler) {
	s.session.enqueue(addListener{event: event, handler: h})
}

// Join adds the socket to a room. Joining a room twice is a no-op.
func (s *Socket) Join(room string) {
	s.session.enqueue(joinRoom{room: room})
}

// Leave removes the socket from a room. Leaving the default room (the
// socket's own id) or a room it is not in is a no-op.
func (s *Socket) Leave(room string) {
	s.session.enqueue(leaveRoom{room: room})
}

// Send emits an event on this socket only.
func (s *Socket) Send(event, payload string) {
	s.session.enqueue(sendEvent{event: event, payload: payload})
}

// EmitTo emits to every socket in a room, including this one, and relays to
// the bus when an adapter is installed.
func (s *Socket) EmitTo(room, event, payload string) {
	emitToRoom(s.registry, room, event, payload, "")
}

// BroadcastTo emits to every socket in a room except this one. The bus
// relay is unconditional; remote processes have no notion of the sender.
func (s *Socket) BroadcastTo(room, event, payload string) {
	emitToRoom(s.registry, room, event, payload, s.id)
}

// Broadcast emits to every socket in a room on the default registry. It is
// the entry point for code that emits without a triggering socket.
func Broadcast(room, event, payload string) {
	emitToRoom(rooms.Default(), room, event, payload, "")
}

// emitToRoom fans an event out to local room members and hands it to the
// installed bus adapter for cross-process relay. excludeSID, when non-empty,
// skips the local sender.
func emitToRoom(reg *rooms.Registry, room, event, payload, excludeSID string) {
	if a := adapter.Current(); a != nil {
		a.Incoming(room, event, payload)
	}
	for _, ep := range reg.Snapshot(room) {
		if excludeSID != "" && ep.SID() == excludeSID {
			continue
		}
		ep.Deliver(event, payload)
	}
}
