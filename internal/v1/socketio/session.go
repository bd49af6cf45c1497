package socketio

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaypoint/socketio/internal/v1/frame"
	"github.com/relaypoint/socketio/internal/v1/logging"
	"github.com/relaypoint/socketio/internal/v1/metrics"
	"github.com/relaypoint/socketio/internal/v1/rooms"
)

// writeWait bounds every sink write.
const writeWait = 10 * time.Second

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
}

// message is the closed set of items a session's mailbox can carry.
type message interface{ isMessage() }

type (
	// sendEvent is an outbound application event.
	sendEvent struct{ event, payload string }
	// joinRoom and leaveRoom mutate the session's room membership.
	joinRoom  struct{ room string }
	leaveRoom struct{ room string }
	// addListener registers a handler on the owning session.
	addListener struct {
		event   string
		handler Handler
	}
	// enginePing is a peer-sent Engine.IO ping; the session replies "3".
	enginePing struct{}
	// keepalivePing is the v4 server keepalive tick; the session sends "2".
	keepalivePing struct{}
	// wsPing and wsPong are transport-layer control frames.
	wsPing struct{}
	wsPong struct{}
	// rawFrame is an inbound text frame awaiting dispatch.
	rawFrame struct{ payload string }
)

func (sendEvent) isMessage()     {}
func (joinRoom) isMessage()      {}
func (leaveRoom) isMessage()     {}
func (addListener) isMessage()   {}
func (enginePing) isMessage()    {}
func (keepalivePing) isMessage() {}
func (wsPing) isMessage()        {}
func (wsPong) isMessage()        {}
func (rawFrame) isMessage()      {}

// session is the per-connection actor. The listen goroutine is the only
// mutator of the room set, the message counter, the handler table, and the
// sink; everything else funnels through the mailbox.
type session struct {
	sid      string
	conn     wsConnection
	registry *rooms.Registry

	mailbox   chan message
	done      chan struct{}
	closeOnce sync.Once
	onClose   func(sid string)

	// Owned by the listen goroutine.
	counter  int
	rooms    []string
	handlers map[string][]Handler
}

// newSession wires a session around an upgraded connection and joins it to
// its default room (its own sid) before the listen loop starts, so direct
// sends via emit_to(sid, ...) work from the first frame.
func newSession(id string, conn wsConnection, registry *rooms.Registry, capacity int) *session {
	s := &session{
		sid:      id,
		conn:     conn,
		registry: registry,
		mailbox:  make(chan message, capacity),
		done:     make(chan struct{}),
		handlers: make(map[string][]Handler),
	}

	conn.SetPingHandler(func(string) error {
		s.enqueue(wsPing{})
		return nil
	})
	conn.SetPongHandler(func(string) error {
		s.enqueue(wsPong{})
		return nil
	})

	s.rooms = append(s.rooms, id)
	registry.Join(id, endpoint{s})
	return s
}

// endpoint is the registry's view of a session: its sid and the send side
// of its mailbox.
type endpoint struct{ s *session }

func (e endpoint) SID() string { return e.s.sid }

func (e endpoint) Deliver(event, payload string) bool {
	return e.s.enqueue(sendEvent{event: event, payload: payload})
}

// enqueue offers a message to the mailbox without ever blocking a producer.
// When the mailbox is full the oldest message is dropped; sends to a closed
// session are silently dropped.
func (s *session) enqueue(m message) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.mailbox <- m:
		return true
	default:
	}

	// Mailbox full: drop the oldest and retry once.
	select {
	case <-s.mailbox:
		metrics.DroppedMessages.WithLabelValues("mailbox_full").Inc()
	default:
	}
	select {
	case s.mailbox <- m:
		return true
	default:
		metrics.DroppedMessages.WithLabelValues("mailbox_full").Inc()
		return false
	}
}

// requestClose asks the listen loop to shut the session down. Safe to call
// from any goroutine, any number of times.
func (s *session) requestClose() {
	s.closeOnce.Do(func() { close(s.done) })
}

// listen is the session's owning loop. It exits when close is requested or
// a fatal frame arrives, removing the socket from every joined room and
// closing the sink on the way out.
func (s *session) listen() {
	ctx := context.WithValue(context.Background(), logging.SessionIDKey, s.sid)

	defer func() {
		for _, room := range s.rooms {
			s.registry.Leave(room, s.sid)
		}
		_ = s.conn.Close()
		metrics.DecConnection()
		if s.onClose != nil {
			s.onClose(s.sid)
		}
		logging.GetLogger().Debug("Session closed", zap.String("sid", s.sid))
	}()

	for {
		select {
		case <-s.done:
			return
		case m := <-s.mailbox:
			if err := s.dispatch(ctx, m); err != nil {
				logging.Error(ctx, "Fatal session error", zap.Error(err))
				s.requestClose()
				return
			}
		}
	}
}

// dispatch handles one mailbox message. A returned error is fatal to the
// session.
func (s *session) dispatch(ctx context.Context, m message) error {
	switch m := m.(type) {
	case sendEvent:
		s.counter++
		s.write(frame.FormatEvent(s.counter, m.event, m.payload))

	case joinRoom:
		if slices.Contains(s.rooms, m.room) {
			logging.GetLogger().Debug("Duplicate join ignored", zap.String("sid", s.sid), zap.String("room", m.room))
			return nil
		}
		s.rooms = append(s.rooms, m.room)
		s.registry.Join(m.room, endpoint{s})

	case leaveRoom:
		if m.room == s.sid {
			// A socket cannot leave its default room.
			return nil
		}
		if i := slices.Index(s.rooms, m.room); i >= 0 {
			s.rooms = slices.Delete(s.rooms, i, i+1)
			s.registry.Leave(m.room, s.sid)
		}

	case addListener:
		s.handlers[m.event] = append(s.handlers[m.event], m.handler)

	case enginePing:
		s.write(frame.Pong)

	case keepalivePing:
		s.write(frame.Ping)

	case wsPing:
		_ = s.conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(writeWait))

	case wsPong:
		_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))

	case rawFrame:
		return s.handleFrame(ctx, m.payload)
	}
	return nil
}

// handleFrame dispatches one inbound Socket.IO text frame by prefix.
func (s *session) handleFrame(ctx context.Context, payload string) error {
	if len(payload) < 2 {
		return &frame.ParseError{Raw: payload, Reason: "frame too short"}
	}

	prefix := payload[:2]
	metrics.FramesReceived.WithLabelValues(prefix).Inc()

	switch prefix {
	case frame.EventPrefix:
		event, content, err := frame.ParseEvent(payload)
		if err != nil {
			return err
		}

		handlers := s.handlers[event]
		if len(handlers) == 0 {
			metrics.EventsDispatched.WithLabelValues("unhandled").Inc()
			logging.Info(ctx, "No handler found for event", zap.String("event", event))
			return nil
		}

		// Handlers run concurrently and are never awaited; a slow handler
		// must not block the session loop.
		sock := s.newSocket()
		for _, h := range handlers {
			go runHandler(ctx, h, sock, content)
		}
		metrics.EventsDispatched.WithLabelValues("dispatched").Inc()

	case frame.Disconnect:
		// Actual shutdown arrives via the transport close.
		logging.Info(ctx, "Peer sent socket.io disconnect")

	case frame.Connect:
		// Connect echo; only v3 clients send this back.
		logging.Info(ctx, "Peer sent socket.io connect")

	default:
		return &frame.ParseError{Raw: payload, Reason: "unknown frame prefix"}
	}
	return nil
}

// runHandler isolates one listener invocation; a panicking or failing
// handler never takes the session down.
func runHandler(ctx context.Context, h Handler, sock *Socket, payload string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn(ctx, "Recovered from panic in event handler", zap.Any("panic", r))
		}
	}()

	if err := h(ctx, sock, payload); err != nil {
		logging.Warn(ctx, "Event handler returned error", zap.Error(err))
	}
}

// write sends a text frame on the sink. Delivery is best effort; a broken
// connection surfaces as a read error shortly after.
func (s *session) write(payload string) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		logging.GetLogger().Debug("Sink write failed", zap.String("sid", s.sid), zap.Error(err))
	}
}

// readLoop translates transport frames into mailbox messages. It exits on
// any read error or close and then requests session shutdown exactly once.
func (s *session) readLoop() {
	defer s.requestClose()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		switch messageType {
		case websocket.TextMessage:
			p := string(data)
			switch p {
			case frame.Ping:
				s.enqueue(enginePing{})
			case frame.Pong:
				// Keepalive answer; nothing to do.
			default:
				s.enqueue(rawFrame{payload: p})
			}
		case websocket.BinaryMessage:
			// Binary socket.io packets are not supported; ignored.
		case websocket.CloseMessage:
			return
		}
	}
}

// keepalive drives the v4 server-side ping. v3 leaves keepalive to the
// client, so the hub only starts this for v4 sessions.
func (s *session) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.enqueue(keepalivePing{}) {
				return
			}
		}
	}
}

// newSocket builds a façade over this session. The room list is a snapshot;
// handlers observe the membership that was current when the frame arrived.
func (s *session) newSocket() *Socket {
	snapshot := make([]string, len(s.rooms))
	copy(snapshot, s.rooms)
	return &Socket{
		id:       s.sid,
		session:  s,
		rooms:    snapshot,
		registry: s.registry,
	}
}
