// Package bus implements the reference Redis pub/sub adapter. A cluster of
// server processes subscribed to the same channel appears to clients as one
// logical broker: every room-scoped outbound is relayed to the channel, and
// envelopes from other processes are re-injected into local rooms.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/relaypoint/socketio/internal/v1/logging"
	"github.com/relaypoint/socketio/internal/v1/metrics"
	"github.com/relaypoint/socketio/internal/v1/rooms"
	"github.com/relaypoint/socketio/internal/v1/sid"
)

// Envelope is the JSON message relayed on the pub/sub channel. SendingID is
// the id of the publishing process, generated once per connection; it is
// used to suppress echo when a process receives its own publication.
type Envelope struct {
	Channel   string `json:"channel"`
	RoomID    string `json:"room_id"`
	Event     string `json:"event"`
	Message   string `json:"message"`
	SendingID string `json:"sending_id"`
}

// DefaultQueueCapacity bounds the broadcast queue between local producers
// and the publish connection. On overflow the oldest message is dropped and
// the loss is logged but not surfaced.
const DefaultQueueCapacity = 16

type outbound struct {
	roomID  string
	event   string
	payload string
}

// Adapter relays room-scoped application events through a Redis channel.
// It holds two connections: a publish pool and a dedicated subscriber.
type Adapter struct {
	client    *redis.Client
	pubsub    *redis.PubSub
	channel   string
	sendingID string
	queue     chan outbound
	registry  *rooms.Registry
	cb        *gobreaker.CircuitBreaker
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Options configures a bus connection.
type Options struct {
	Addr          string
	Password      string
	Channel       string
	QueueCapacity int             // defaults to DefaultQueueCapacity
	Registry      *rooms.Registry // defaults to rooms.Default()
}

// Connect opens the publish and subscribe connections and starts the
// publisher and subscriber loops. The returned adapter is ready to be
// installed process-wide.
func Connect(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.Registry == nil {
		opts.Registry = rooms.Default()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           0, // Default DB
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Ping to verify connection immediately
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "socketio-bus",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	a := &Adapter{
		client:    rdb,
		pubsub:    rdb.Subscribe(loopCtx, opts.Channel),
		channel:   opts.Channel,
		sendingID: sid.Generate(),
		queue:     make(chan outbound, opts.QueueCapacity),
		registry:  opts.Registry,
		cb:        gobreaker.NewCircuitBreaker(st),
		cancel:    loopCancel,
	}

	a.wg.Add(2)
	go a.publishLoop(loopCtx)
	go a.subscribeLoop(loopCtx)

	logging.Info(ctx, "Connected to Redis pub/sub bus",
		zap.String("addr", opts.Addr),
		zap.String("channel", opts.Channel),
		zap.String("sendingId", a.sendingID))
	return a, nil
}

// SendingID returns the per-process publisher id.
func (a *Adapter) SendingID() string {
	return a.sendingID
}

// Incoming relays a locally originated event to the bus. Producers never
// block: when the queue is full the oldest entry is discarded.
func (a *Adapter) Incoming(roomID, event, payload string) {
	msg := outbound{roomID: roomID, event: event, payload: payload}
	select {
	case a.queue <- msg:
		return
	default:
	}

	// Queue full: drop the oldest and retry once.
	select {
	case <-a.queue:
		metrics.DroppedMessages.WithLabelValues("bus_queue_full").Inc()
		logging.Warn(context.Background(), "Bus queue full, dropped oldest message", zap.String("roomId", roomID))
	default:
	}
	select {
	case a.queue <- msg:
	default:
		metrics.DroppedMessages.WithLabelValues("bus_queue_full").Inc()
	}
}

// Outgoing handles bus-to-local traffic. The subscriber loop re-injects via
// the room registry directly, so there is nothing to do here.
func (a *Adapter) Outgoing(roomID, event, payload string) {}

// publishLoop drains the broadcast queue and publishes JSON envelopes.
func (a *Adapter) publishLoop(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.queue:
			data, err := json.Marshal(Envelope{
				Channel:   a.channel,
				RoomID:    msg.roomID,
				Event:     msg.event,
				Message:   msg.payload,
				SendingID: a.sendingID,
			})
			if err != nil {
				logging.Error(ctx, "Failed to marshal bus envelope", zap.Error(err))
				continue
			}

			_, err = a.cb.Execute(func() (interface{}, error) {
				return nil, a.client.Publish(ctx, a.channel, data).Err()
			})
			if err != nil {
				if err == gobreaker.ErrOpenState {
					logging.Warn(ctx, "Bus circuit breaker open: dropping publish", zap.String("roomId", msg.roomID))
					continue
				}
				logging.Error(ctx, "Bus publish failed", zap.String("roomId", msg.roomID), zap.Error(err))
				continue
			}
			metrics.BusPublished.Inc()
		}
	}
}

// subscribeLoop decodes envelopes from the channel and injects them into
// local rooms. Envelopes published by this process are dropped.
func (a *Adapter) subscribeLoop(ctx context.Context) {
	defer a.wg.Done()

	ch := a.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				logging.Warn(ctx, "Bus subscription channel closed", zap.String("channel", a.channel))
				return
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				metrics.BusDecodeErrors.Inc()
				logging.Error(ctx, "Failed to decode bus envelope", zap.Error(err), zap.String("raw", msg.Payload))
				continue
			}
			metrics.BusReceived.Inc()

			if env.SendingID == a.sendingID {
				// Echo of our own publication.
				continue
			}

			for _, ep := range a.registry.Snapshot(env.RoomID) {
				ep.Deliver(env.Event, env.Message)
			}
		}
	}
}

// Ping checks Redis connectivity. Used by health checks.
func (a *Adapter) Ping(ctx context.Context) error {
	if a == nil || a.client == nil {
		return nil
	}
	_, err := a.cb.Execute(func() (interface{}, error) {
		return nil, a.client.Ping(ctx).Err()
	})
	return err
}

// Close stops both loops and releases the connections.
func (a *Adapter) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	a.cancel()
	err := a.pubsub.Close()
	a.wg.Wait()
	if cerr := a.client.Close(); err == nil {
		err = cerr
	}
	return err
}
