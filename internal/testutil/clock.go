package testutil

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// AutoClock is a clock.Clock whose After fires immediately and moves Now
// forward by the requested duration. Polling loops driven by it run through
// minutes of simulated time instantly.
//
// Only Now and After are implemented; the other clock.Clock methods panic
// through the nil embedded interface.
type AutoClock struct {
	clock.Clock

	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewAutoClock returns an AutoClock starting at start.
func NewAutoClock(start time.Time) *AutoClock {
	return &AutoClock{now: start}
}

func (c *AutoClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *AutoClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves Now forward without recording a sleep.
func (c *AutoClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every duration passed to After, in call order.
func (c *AutoClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
