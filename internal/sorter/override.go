package sorter

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// OverrideState is the lifecycle of a one-shot lane override.
type OverrideState int

const (
	// OverridePending means the target position has not arrived yet.
	OverridePending OverrideState = iota
	// OverrideSucceeded means the slot at the target position was graded
	// with the override lane.
	OverrideSucceeded
	// OverrideMissed means the counter passed the target position without
	// the expected slot ever appearing in sequence 1.
	OverrideMissed
)

func (s OverrideState) String() string {
	switch s {
	case OverridePending:
		return "pending"
	case OverrideSucceeded:
		return "succeeded"
	case OverrideMissed:
		return "missed"
	default:
		return "unknown"
	}
}

// OverrideTask routes the single item that reaches targetPosition on a
// channel to a fixed lane, bypassing weight and template evaluation.
// It fires at most once.
type OverrideTask struct {
	ID       string
	Channel  string
	Target   int64
	Lane     uint16
	State    OverrideState
	Created  time.Time
	Resolved time.Time
}

func newOverrideTask(channel string, target int64, lane uint16, now time.Time) *OverrideTask {
	return &OverrideTask{
		ID:      uuid.NewString(),
		Channel: channel,
		Target:  target,
		Lane:    lane,
		State:   OverridePending,
		Created: now,
	}
}

// overrideSet holds pending tasks ordered by target position so the
// cycle can expire passed tasks with a prefix scan.
type overrideSet struct {
	tasks []*OverrideTask
}

func (s *overrideSet) add(t *OverrideTask) {
	s.tasks = append(s.tasks, t)
	sort.SliceStable(s.tasks, func(i, j int) bool {
		return s.tasks[i].Target < s.tasks[j].Target
	})
}

// match returns the pending task for channel at exactly position, if any.
func (s *overrideSet) match(channel string, position int64) *OverrideTask {
	for _, t := range s.tasks {
		if t.Target > position {
			return nil
		}
		if t.Target == position && t.Channel == channel {
			return t
		}
	}
	return nil
}

// expire marks every task whose target is strictly below position as
// missed and removes resolved tasks. It returns the number newly missed.
func (s *overrideSet) expire(position int64, now time.Time) int {
	missed := 0
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.State != OverridePending {
			continue
		}
		if t.Target < position {
			t.State = OverrideMissed
			t.Resolved = now
			missed++
			continue
		}
		kept = append(kept, t)
	}
	s.tasks = kept
	return missed
}

// remove drops a resolved task from the pending set.
func (s *overrideSet) remove(task *OverrideTask) {
	for i, t := range s.tasks {
		if t == task {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

func (s *overrideSet) snapshot() []OverrideTask {
	out := make([]OverrideTask, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = *t
	}
	return out
}
