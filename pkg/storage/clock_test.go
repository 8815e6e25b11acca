package storage

import (
	"sync"
	"time"
)

// manualClock is a test clock that only moves when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// tickingClock advances by step on every read, so consecutive visits get distinct instants.
type tickingClock struct {
	manualClock
	step time.Duration
}

func newTickingClock(step time.Duration) *tickingClock {
	return &tickingClock{manualClock: *newManualClock(), step: step}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}
