package core

import (
	"sync"
	"time"
)

// Clock measures elapsed playback time for a room. It is either stopped
// or running from a fixed start; Stop always resets, there is no pause.
// Reading a stopped clock yields 0, never a stale value.
type Clock struct {
	mu      sync.Mutex
	now     func() time.Time
	running bool
	started time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockAt builds a clock on an explicit time source. Tests pass a fake.
func NewClockAt(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Start begins measuring from zero. Starting a running clock is a no-op;
// the caller reads Elapsed to resync instead of restarting.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.started = c.now()
}

// Stop halts the clock and resets elapsed time to zero.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.started = time.Time{}
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Elapsed returns seconds since Start, or 0 when the clock is stopped.
func (c *Clock) Elapsed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0
	}
	return c.now().Sub(c.started).Seconds()
}
