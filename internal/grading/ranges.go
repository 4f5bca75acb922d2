package grading

import (
	"fmt"
	"sort"
)

// WeightRange is one static band of the weight-only sorting table.
// Immutable once configured.
type WeightRange struct {
	Min   int32
	Max   int32
	Grade uint16
}

// String renders the range the way operators read it.
func (r WeightRange) String() string {
	return fmt.Sprintf("%d-%dg->lane %d", r.Min, r.Max, r.Grade)
}

// RangeTable is an ordered set of weight ranges. Ranges are expected, not
// enforced, to be non-overlapping; lookup order makes the behavior
// deterministic either way.
type RangeTable struct {
	ranges []WeightRange
}

// NewRangeTable copies and sorts the ranges by ascending Min, so lighter
// bands match first.
func NewRangeTable(ranges []WeightRange) *RangeTable {
	sorted := make([]WeightRange, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
	return &RangeTable{ranges: sorted}
}

// Len returns the number of configured ranges.
func (t *RangeTable) Len() int {
	return len(t.ranges)
}

// Ranges returns a copy of the table contents.
func (t *RangeTable) Ranges() []WeightRange {
	out := make([]WeightRange, len(t.ranges))
	copy(out, t.ranges)
	return out
}

// Lookup returns the grade of the first range containing weight. A weight
// above the heaviest range's max still matches that range: the table's top
// band is open-ended, an oversized item is graded with the heaviest class
// rather than silently rejected.
func (t *RangeTable) Lookup(weight int32) (uint16, bool) {
	for _, r := range t.ranges {
		if r.Min <= weight && weight <= r.Max {
			return r.Grade, true
		}
	}
	if n := len(t.ranges); n > 0 && weight > t.ranges[n-1].Max {
		return t.ranges[n-1].Grade, true
	}
	return 0, false
}
