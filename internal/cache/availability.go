package cache

import "sync/atomic"

// Availability is the shared backend-health flag observed by every request.
// It is flipped only by the cache adapter's own connection lifecycle
// callbacks and read lock-free on the request path.
type Availability struct {
	up atomic.Bool
}

// NewAvailability returns a flag in the given initial state.
func NewAvailability(up bool) *Availability {
	a := &Availability{}
	a.up.Store(up)
	return a
}

// Up reports whether the backend is believed reachable.
func (a *Availability) Up() bool { return a.up.Load() }

// MarkUp records a successful connection.
func (a *Availability) MarkUp() { a.up.Store(true) }

// MarkDown records a lost connection.
func (a *Availability) MarkDown() { a.up.Store(false) }
