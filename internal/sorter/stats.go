package sorter

import "time"

// Stats is a point-in-time copy of the orchestrator's counters.
type Stats struct {
	StartedAt time.Time `json:"started_at"`
	Cycles    uint64    `json:"cycles"`

	Decisions      uint64 `json:"decisions"`
	WeightSorted   uint64 `json:"weight_sorted"`
	TemplateSorted uint64 `json:"template_sorted"`
	OverrideSorted uint64 `json:"override_sorted"`
	Rejected       uint64 `json:"rejected"`

	MissedOverrides uint64 `json:"missed_overrides"`
	AlignmentMisses uint64 `json:"alignment_misses"`

	BatchWrites   uint64 `json:"batch_writes"`
	ReadFailures  uint64 `json:"read_failures"`
	WriteFailures uint64 `json:"write_failures"`

	DroppedEvents uint64 `json:"dropped_events"`
}
