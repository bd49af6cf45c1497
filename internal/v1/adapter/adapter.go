// Package adapter holds the process-wide relay consulted on room-scoped
// outbound traffic. At most one adapter is installed at a time; the
// reference implementation is the Redis adapter in internal/v1/bus.
package adapter

import "sync"

// Adapter relays room-scoped application events to an external bus. Only
// application events travel through an adapter; membership changes and
// listener registration are local facts and are never relayed.
type Adapter interface {
	// Incoming relays a locally originated event to the bus.
	Incoming(roomID, event, payload string)
	// Outgoing handles bus-to-local traffic. The Redis adapter re-injects
	// via the room registry directly, so this is typically a no-op.
	Outgoing(roomID, event, payload string)
}

var (
	mu      sync.RWMutex
	current Adapter
)

// Install sets the process-wide adapter, replacing any prior one.
// Installing does not shut down the adapter it replaces.
func Install(a Adapter) {
	mu.Lock()
	defer mu.Unlock()
	current = a
}

// Current returns the installed adapter, or nil if none is installed.
func Current() Adapter {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Reset removes the installed adapter. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
}
