package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EmptyMiss(t *testing.T) {
	q := NewQueue(4)
	_, ok := q.GetAligned(1)
	assert.False(t, ok)
}

func TestQueue_ExactHit(t *testing.T) {
	q := NewQueue(4)
	q.Put(42, 10)

	e, ok := q.GetAligned(10)
	require.True(t, ok)
	assert.Equal(t, int32(42), e.Value)
	assert.Equal(t, int64(10), e.Position)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_UnreachablePositionLeavesQueueUntouched(t *testing.T) {
	q := NewQueue(4)
	q.Put(42, 10)

	_, ok := q.GetAligned(5)
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len(), "asking for a pre-head position must not pop")

	// The buffered entry is still retrievable.
	e, ok := q.GetAligned(10)
	require.True(t, ok)
	assert.Equal(t, int32(42), e.Value)
}

func TestQueue_LossOnSkip(t *testing.T) {
	q := NewQueue(4)
	q.Put(1, 8)
	q.Put(2, 9)
	q.Put(3, 10)

	// Asking for 10 discards the stale entries at 8 and 9.
	e, ok := q.GetAligned(10)
	require.True(t, ok)
	assert.Equal(t, int32(3), e.Value)
	assert.Equal(t, 0, q.Len())

	// Position 9 was skipped past; it can never be retrieved again,
	// even though it was never returned.
	_, ok = q.GetAligned(9)
	assert.False(t, ok)
}

func TestQueue_StaleRunDiscardedInOneCall(t *testing.T) {
	q := NewQueue(20)
	for pos := int64(1); pos <= 15; pos++ {
		q.Put(int32(pos), pos)
	}

	e, ok := q.GetAligned(15)
	require.True(t, ok)
	assert.Equal(t, int32(15), e.Value)
	assert.Equal(t, 0, q.Len(), "the whole stale run is gone")
}

func TestQueue_EvictsOldestOnOverflow(t *testing.T) {
	q := NewQueue(0) // capacity == Slack
	for pos := int64(1); pos <= int64(Slack+3); pos++ {
		q.Put(int32(pos), pos)
	}
	assert.Equal(t, Slack, q.Len())

	// Oldest three were evicted; position 4 is now the head.
	_, ok := q.GetAligned(3)
	assert.False(t, ok)
	e, ok := q.GetAligned(4)
	require.True(t, ok)
	assert.Equal(t, int32(4), e.Value)
}

func TestQueue_OffsetPairingScenario(t *testing.T) {
	// Content sensor sits 4 positions upstream of the weigher: an item
	// measured by the content sensor at position 100 reaches the weigher
	// at position 104.
	const offset = 4
	content := NewQueue(offset)
	content.Put(12, 100)

	weighPos := int64(104)
	e, ok := content.GetAligned(weighPos - offset)
	require.True(t, ok)
	assert.Equal(t, int32(12), e.Value)
	assert.Equal(t, int64(100), e.Position)
}
