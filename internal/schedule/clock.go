package schedule

import (
	"sync"
	"time"
)

// Clock is an offset-based time source. Production code uses the zero
// offset; tests advance it to control "now" without sleeping.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
	fixed  *time.Time
}

// NewClock creates a clock tracking the wall clock.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fixed != nil {
		return c.fixed.Add(c.offset)
	}
	return time.Now().Add(c.offset)
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// SetFixed pins the clock to a fixed instant (plus any later Advance calls).
// Used by tests that need a deterministic "now".
func (c *Clock) SetFixed(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixed = &t
	c.offset = 0
}

// Reset returns the clock to the wall clock with no offset.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixed = nil
	c.offset = 0
}
