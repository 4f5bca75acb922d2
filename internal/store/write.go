package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/sortline/internal/sorter"
)

// WriteDecision appends one decision to the log. Re-inserting an
// already stored decision ID is a silent no-op (CP-1).
func (s *Store) WriteDecision(ctx context.Context, d sorter.Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions
		(id, decided_at, channel, sequence, position, weight, content, score, lane, cause)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		d.ID,
		d.Time.UTC().Format(time.RFC3339Nano),
		d.Channel,
		d.Sequence,
		d.Position,
		d.Weight,
		d.Content,
		d.Score,
		d.Lane,
		string(d.Cause),
	)
	if err != nil {
		return fmt.Errorf("write decision: %w", err)
	}
	return nil
}

// WriteStats appends a statistics snapshot taken at the given time.
func (s *Store) WriteStats(ctx context.Context, at time.Time, stats sorter.Stats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats_snapshots
		(taken_at, cycles, decisions, weight_sorted, template_sorted, override_sorted,
		 rejected, missed_overrides, alignment_misses, batch_writes, read_failures,
		 write_failures, dropped_events)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		at.UTC().Format(time.RFC3339Nano),
		stats.Cycles,
		stats.Decisions,
		stats.WeightSorted,
		stats.TemplateSorted,
		stats.OverrideSorted,
		stats.Rejected,
		stats.MissedOverrides,
		stats.AlignmentMisses,
		stats.BatchWrites,
		stats.ReadFailures,
		stats.WriteFailures,
		stats.DroppedEvents,
	)
	if err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}
