package testutil

import (
	"sync"
	"time"
)

// FixedClock is a settable wall clock for tests that exercise
// second-parity lane alternation.
//
// Thread-safety: all methods are safe for concurrent use.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock pinned to the given instant.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the pinned instant. Matches the orchestrator's clock
// function signature so it can be injected directly.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set repins the clock.
func (c *FixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// EvenSecond returns an instant whose wall-clock second is even.
// Alternation picks the primary lane at such instants.
func EvenSecond() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 42, 0, time.UTC)
}

// OddSecond returns an instant whose wall-clock second is odd.
func OddSecond() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 43, 0, time.UTC)
}
