// Package clock implements the per-room logical clock: a monotone
// counter used as the LWW tie-breaker and broadcast-ordering authority
// for one room.
package clock

import "sync"

// Clock is a guarded monotone counter. The zero value starts at 0.
type Clock struct {
	mu sync.Mutex
	n  uint64
}

// New returns a clock starting at 0.
func New() *Clock {
	return &Clock{}
}

// Tick advances the clock by one and returns the new value. Called on
// every locally-originated op.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Merge advances the clock to max(current, incoming)+1 and returns the
// new value. Called on receipt of any remote-stamped clock value so the
// room clock always strictly exceeds every clock it has observed.
func (c *Clock) Merge(incoming uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if incoming > c.n {
		c.n = incoming
	}
	c.n++
	return c.n
}

// Peek returns the current value without advancing it.
func (c *Clock) Peek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
