package socketio

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaypoint/socketio/internal/v1/frame"
	"github.com/relaypoint/socketio/internal/v1/logging"
	"github.com/relaypoint/socketio/internal/v1/metrics"
	"github.com/relaypoint/socketio/internal/v1/rooms"
	"github.com/relaypoint/socketio/internal/v1/sid"
)

const (
	defaultMailboxCapacity = 16
	defaultPingInterval    = 25 * time.Second
	defaultPingTimeout     = 20 * time.Second
)

// Hub accepts socket.io upgrade requests and owns the resulting sessions.
type Hub struct {
	connect  ConnectHandler
	registry *rooms.Registry
	upgrader websocket.Upgrader

	mailboxCapacity int
	pingInterval    time.Duration
	pingTimeout     time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// Option tunes a Hub.
type Option func(*Hub)

// WithMailboxCapacity bounds each session's mailbox. Overflow drops the
// oldest message.
func WithMailboxCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.mailboxCapacity = n
		}
	}
}

// WithPingInterval sets the keepalive interval advertised in the handshake
// and used for the v4 server-side ping.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithPingTimeout sets the ping timeout advertised in the handshake.
func WithPingTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingTimeout = d
		}
	}
}

// WithRegistry swaps the room registry. Useful for tests; production hubs
// share the process-wide default so the bus adapter sees the same rooms.
func WithRegistry(r *rooms.Registry) Option {
	return func(h *Hub) { h.registry = r }
}

// WithCheckOrigin overrides the upgrade origin check. The default accepts
// all origins; origin policy belongs to the CORS layer in front.
func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = f }
}

// NewHub builds a hub. connect runs once per accepted session and is where
// the application registers its listeners.
func NewHub(connect ConnectHandler, opts ...Option) *Hub {
	h := &Hub{
		connect:         connect,
		registry:        rooms.Default(),
		mailboxCapacity: defaultMailboxCapacity,
		pingInterval:    defaultPingInterval,
		pingTimeout:     defaultPingTimeout,
		sessions:        make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeIO handles GET /socket.io/*. It rejects non-upgrade requests with
// 400, performs the WebSocket handshake, sends the Engine.IO open and
// Socket.IO connect frames, and spawns the session goroutines.
func (h *Hub) ServeIO(c *gin.Context) {
	v4 := c.Query("EIO") == "4"

	if !strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		if c.Query("transport") == "polling" {
			c.String(http.StatusBadRequest, "polling transport is not implemented, use websocket")
		} else {
			c.String(http.StatusBadRequest, "expected websocket upgrade request, polling is not implemented")
		}
		return
	}
	if c.GetHeader("Sec-WebSocket-Key") == "" {
		c.String(http.StatusBadRequest, "missing Sec-WebSocket-Key header")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Error(c.Request.Context(), "WebSocket upgrade failed", zap.Error(err))
		return
	}

	id := sid.Generate()
	h.openSession(id, conn, v4)
}

// openSession sends the opening frames and starts the actor goroutines. It
// is separate from ServeIO so tests can drive it with a mock connection.
func (h *Hub) openSession(id string, conn wsConnection, v4 bool) {
	sess := newSession(id, conn, h.registry, h.mailboxCapacity)
	sess.onClose = h.forget

	open, err := frame.EncodeOpen(frame.Handshake{
		Sid:          id,
		Upgrades:     []string{"websocket"},
		PingInterval: int(h.pingInterval / time.Millisecond),
		PingTimeout:  int(h.pingTimeout / time.Millisecond),
	})
	if err != nil {
		logging.Error(context.Background(), "Failed to encode handshake", zap.Error(err))
		_ = conn.Close()
		h.registry.Leave(id, id)
		return
	}
	sess.write(open)
	sess.write(frame.EncodeConnect(v4, id))

	h.mu.Lock()
	h.sessions[id] = sess
	h.mu.Unlock()
	metrics.IncConnection()
	logging.GetLogger().Info("Session opened",
		zap.String("sid", id),
		zap.Bool("v4", v4))

	go sess.listen()
	if v4 {
		go sess.keepalive(h.pingInterval)
	}

	// Register listeners before any client frame can be dispatched.
	if h.connect != nil {
		if err := h.connect(sess.newSocket()); err != nil {
			logging.GetLogger().Warn("Connect handler returned error",
				zap.String("sid", id), zap.Error(err))
		}
	}

	go sess.readLoop()
}

func (h *Hub) forget(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// Len reports the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every session and waits for their loops to exit or the
// context to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	open := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.requestClose()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if h.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
