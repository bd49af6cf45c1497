// Package rooms maintains the process-wide mapping from room ids to the
// sockets currently joined to them.
package rooms

import (
	"sync"

	"github.com/relaypoint/socketio/internal/v1/metrics"
)

// Endpoint is the send side of a session's mailbox as seen by the registry.
// Deliver reports whether the message was accepted; sends to a departed
// session return false and are silently dropped by the caller.
type Endpoint interface {
	SID() string
	Deliver(event, payload string) bool
}

// Registry is a concurrent room membership table. Writers serialize per
// registry; readers receive snapshots so iteration never races a writer.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string][]Endpoint
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{rooms: make(map[string][]Endpoint)}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, creating it on first use. Its
// lifecycle is the process's; tests reset it between scenarios.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New()
	})
	return defaultReg
}

// Join adds the endpoint to the room. A sid appears at most once per room;
// duplicate joins are no-ops.
func (r *Registry) Join(roomID string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	for _, m := range members {
		if m.SID() == ep.SID() {
			return
		}
	}
	r.rooms[roomID] = append(members, ep)
	r.updateGauges(roomID)
}

// Leave removes the entry whose sid matches. Leaving a room the sid is not
// in is a no-op. An emptied room is dropped from the table.
func (r *Registry) Leave(roomID, sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for i, m := range members {
		if m.SID() == sid {
			r.rooms[roomID] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(r.rooms[roomID]) == 0 {
		delete(r.rooms, roomID)
		metrics.RoomMembers.DeleteLabelValues(roomID)
		metrics.ActiveRooms.Set(float64(len(r.rooms)))
		return
	}
	r.updateGauges(roomID)
}

// Snapshot returns a copy of the room's membership for safe iteration.
func (r *Registry) Snapshot(roomID string) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Endpoint, len(members))
	copy(out, members)
	return out
}

// Size returns the number of sockets joined to the room.
func (r *Registry) Size(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Reset drops all membership state. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for roomID := range r.rooms {
		metrics.RoomMembers.DeleteLabelValues(roomID)
	}
	r.rooms = make(map[string][]Endpoint)
	metrics.ActiveRooms.Set(0)
}

// updateGauges must be called with the write lock held.
func (r *Registry) updateGauges(roomID string) {
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	metrics.RoomMembers.WithLabelValues(roomID).Set(float64(len(r.rooms[roomID])))
}
