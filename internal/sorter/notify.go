package sorter

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cause says which rule produced a decision.
type Cause string

const (
	CauseRange    Cause = "range"
	CauseTemplate Cause = "template"
	CauseOverride Cause = "override"
	CauseReject   Cause = "reject"
)

// Decision is one graded slot, published after the grade is staged in
// the snapshot.
type Decision struct {
	ID       string
	Time     time.Time
	Channel  string
	Sequence int
	Position int64
	Weight   int32
	Content  int32
	Score    float64
	Lane     uint16
	Cause    Cause
}

// Sink fans decisions out to at most one consumer over a bounded
// channel. Publish never blocks; when the consumer falls behind, events
// are dropped and counted.
type Sink struct {
	ch      chan Decision
	dropped atomic.Uint64

	closeOnce sync.Once
}

// NewSink returns a sink buffering up to capacity undelivered decisions.
func NewSink(capacity int) *Sink {
	if capacity < 1 {
		capacity = 1
	}
	return &Sink{ch: make(chan Decision, capacity)}
}

// Publish enqueues d without blocking, dropping it if the buffer is full.
func (s *Sink) Publish(d Decision) {
	select {
	case s.ch <- d:
	default:
		s.dropped.Add(1)
	}
}

// Events is the consumer side. The channel is closed by Close.
func (s *Sink) Events() <-chan Decision {
	return s.ch
}

// Dropped reports how many decisions were discarded because the
// consumer lagged.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close ends the event stream. Publish must not be called after Close.
func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}
