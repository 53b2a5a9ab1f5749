package leaseq

import (
	"context"
	"sync"
	"time"
)

// Clock reports local time. Only differences between readings are used for
// lease arithmetic; absolute times come from an Authority.
type Clock interface {
	Now() time.Time
}

// Authority supplies the reference time that lease expiries are measured against.
type Authority interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the process clock.
func SystemClock() Clock { return systemClock{} }

// ManualClock is a Clock that only moves when told to. Safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock reading t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the current reading.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
