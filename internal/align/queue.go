// Package align pairs readings from asynchronous sensor streams that
// describe the same physical item.
//
// Two sensors observe an item at different points on the line, so their
// readings for it arrive under different values of the shared position
// counter; the fixed difference is the configured offset. Each stream
// buffers its readings in a bounded Queue keyed by position, and the
// triggering stream asks for its partner's reading at (own position -
// offset).
//
// The data-loss semantics are deliberate: once a position has been
// skipped past it can never be retrieved again, even if re-queried. The
// line keeps moving; late questions get no answers.
package align

import "log/slog"

// Slack is added to the configured offset when sizing a queue, absorbing
// small bursts of readings between orchestrator cycles.
const Slack = 10

// Entry is one buffered reading. Entries are enqueued with non-decreasing
// positions; the queue does not enforce this, it inherits it from the
// monotonic position counter.
type Entry struct {
	Value    int32
	Position int64
}

// Queue is a bounded position-aligned FIFO for one sensor stream.
// Not safe for concurrent use; the owning correlator serializes access.
type Queue struct {
	entries []Entry
	cap     int
}

// NewQueue creates a queue sized for the given stream offset.
func NewQueue(offset int) *Queue {
	if offset < 0 {
		offset = 0
	}
	return &Queue{cap: offset + Slack}
}

// Len returns the number of buffered entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Put appends a reading, evicting the oldest entry when full.
func (q *Queue) Put(value int32, position int64) {
	if len(q.entries) == q.cap {
		slog.Debug("alignment queue full, evicting oldest",
			"evicted_position", q.entries[0].Position, "new_position", position)
		copy(q.entries, q.entries[1:])
		q.entries = q.entries[:len(q.entries)-1]
	}
	q.entries = append(q.entries, Entry{Value: value, Position: position})
}

// GetAligned retrieves the reading recorded at exactly position.
//
//   - Queue empty: miss.
//   - Head at position: pop and return it.
//   - Head past position: miss, queue untouched. The requested position
//     is permanently unreachable; there is nothing to pop that would help.
//   - Head before position: the head is stale, discard it and retry.
//
// One call may therefore discard an unbounded run of stale entries.
func (q *Queue) GetAligned(position int64) (Entry, bool) {
	for len(q.entries) > 0 {
		head := q.entries[0]
		switch {
		case head.Position == position:
			q.pop()
			return head, true
		case head.Position > position:
			return Entry{}, false
		default:
			q.pop()
		}
	}
	return Entry{}, false
}

func (q *Queue) pop() {
	copy(q.entries, q.entries[1:])
	q.entries = q.entries[:len(q.entries)-1]
}
