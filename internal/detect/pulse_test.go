package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sortline/internal/counter"
)

// fakeBitReader replays a scripted level sequence.
type fakeBitReader struct {
	levels []bool
	errs   []bool
	i      int
}

func (f *fakeBitReader) ReadBit(addr uint16, bit uint) (bool, error) {
	defer func() { f.i++ }()
	if f.i < len(f.errs) && f.errs[f.i] {
		return false, assert.AnError
	}
	return f.levels[f.i], nil
}

func TestPulseSource_CountsRisingEdgesOnly(t *testing.T) {
	reader := &fakeBitReader{levels: []bool{false, true, true, false, true, false}}
	c := counter.New()
	p := NewPulseSource("eye", reader, 3, 0, c)

	for range reader.levels {
		p.sample()
	}

	assert.Equal(t, int64(2), c.Get(), "two rising edges in the sequence")

	r, ok := p.Result()
	require.True(t, ok)
	assert.Equal(t, int64(2), r.Position)
}

func TestPulseSource_FirstSampleNeverCounts(t *testing.T) {
	// The line may already be mid-pulse at startup; a high first sample
	// is a level, not an edge.
	reader := &fakeBitReader{levels: []bool{true, true}}
	c := counter.New()
	p := NewPulseSource("eye", reader, 3, 0, c)

	p.sample()
	p.sample()

	assert.Equal(t, int64(0), c.Get())
}

func TestPulseSource_ReadFailureDisarmsEdgeDetection(t *testing.T) {
	// low, error, high: the pulse may have started during the outage, so
	// the post-error high must not be counted as an edge.
	reader := &fakeBitReader{
		levels: []bool{false, false, true, true},
		errs:   []bool{false, true, false, false},
	}
	c := counter.New()
	p := NewPulseSource("eye", reader, 3, 0, c)

	for range reader.levels {
		p.sample()
	}

	assert.Equal(t, int64(0), c.Get())
}

func TestPulseSource_SyncCountResetsPosition(t *testing.T) {
	reader := &fakeBitReader{levels: []bool{false, true}}
	c := counter.New()
	p := NewPulseSource("eye", reader, 3, 0, c)

	p.SyncCount(100)
	for range reader.levels {
		p.sample()
	}

	assert.Equal(t, int64(101), c.Get())
}
