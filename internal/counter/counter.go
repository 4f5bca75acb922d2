// Package counter provides the shared item-position counter.
//
// One physical item passing the line's pulse sensor advances the counter
// by one. The orchestrator, the sensor correlator, and override tasks all
// key off this single position, which is what makes cross-sensor
// alignment possible.
package counter

import (
	"log/slog"
	"sync"
)

// Observer is notified after every counter mutation, with the value
// before and after. Observers run synchronously on the mutating
// goroutine, so they must be fast and must not call back into the
// counter.
type Observer func(old, new int64)

// Counter is a thread-safe observable position counter.
type Counter struct {
	mu        sync.Mutex
	value     int64
	observers []Observer
}

// New creates a counter starting at 0.
func New() *Counter {
	return &Counter{}
}

// Get returns the current position.
func (c *Counter) Get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the position and returns the previous value.
func (c *Counter) Set(value int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.value
	c.value = value
	c.notify(old, value)
	return old
}

// Add advances the position by delta and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.value
	c.value += delta
	c.notify(old, c.value)
	return c.value
}

// Reset sets the position back to 0 and returns the previous value.
func (c *Counter) Reset() int64 {
	return c.Set(0)
}

// Observe registers an observer. There is no removal: observers live as
// long as the counter, which lives as long as the process.
func (c *Counter) Observe(fn Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// notify runs observers under the counter lock, preserving mutation
// order. A panicking observer is contained so it cannot take down the
// pulse source that ticked the counter.
func (c *Counter) notify(old, new int64) {
	for _, fn := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("counter observer panicked", "panic", r, "old", old, "new", new)
				}
			}()
			fn(old, new)
		}()
	}
}
