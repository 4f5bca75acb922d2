package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/sortline/internal/sorter"
)

// ErrNoStats is returned when no statistics snapshot has been written
// yet.
var ErrNoStats = errors.New("store: no stats snapshots recorded")

// LaneCount is a per-lane decision tally.
type LaneCount struct {
	Lane  uint16 `json:"lane"`
	Count int64  `json:"count"`
}

// StatsSnapshot is one stored statistics row.
type StatsSnapshot struct {
	TakenAt time.Time    `json:"taken_at"`
	Stats   sorter.Stats `json:"stats"`
}

// RecentDecisions returns the newest decisions, most recent first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]sorter.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, decided_at, channel, sequence, position, weight, content, score, lane, cause
		FROM decisions
		ORDER BY decided_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent decisions: %w", err)
	}
	defer rows.Close()

	var out []sorter.Decision
	for rows.Next() {
		var d sorter.Decision
		var decidedAt, cause string
		if err := rows.Scan(&d.ID, &decidedAt, &d.Channel, &d.Sequence, &d.Position,
			&d.Weight, &d.Content, &d.Score, &d.Lane, &cause); err != nil {
			return nil, fmt.Errorf("recent decisions: scan: %w", err)
		}
		if d.Time, err = time.Parse(time.RFC3339Nano, decidedAt); err != nil {
			return nil, fmt.Errorf("recent decisions: bad timestamp %q: %w", decidedAt, err)
		}
		d.Cause = sorter.Cause(cause)
		out = append(out, d)
	}
	return out, rows.Err()
}

// LaneTotals tallies stored decisions per output lane.
func (s *Store) LaneTotals(ctx context.Context) ([]LaneCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lane, COUNT(*) FROM decisions GROUP BY lane ORDER BY lane
	`)
	if err != nil {
		return nil, fmt.Errorf("lane totals: %w", err)
	}
	defer rows.Close()

	var out []LaneCount
	for rows.Next() {
		var lc LaneCount
		if err := rows.Scan(&lc.Lane, &lc.Count); err != nil {
			return nil, fmt.Errorf("lane totals: scan: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// LatestStats returns the most recent statistics snapshot.
func (s *Store) LatestStats(ctx context.Context) (StatsSnapshot, error) {
	var snap StatsSnapshot
	var takenAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT taken_at, cycles, decisions, weight_sorted, template_sorted, override_sorted,
		       rejected, missed_overrides, alignment_misses, batch_writes, read_failures,
		       write_failures, dropped_events
		FROM stats_snapshots
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&takenAt, &snap.Stats.Cycles, &snap.Stats.Decisions, &snap.Stats.WeightSorted,
		&snap.Stats.TemplateSorted, &snap.Stats.OverrideSorted, &snap.Stats.Rejected,
		&snap.Stats.MissedOverrides, &snap.Stats.AlignmentMisses, &snap.Stats.BatchWrites,
		&snap.Stats.ReadFailures, &snap.Stats.WriteFailures, &snap.Stats.DroppedEvents)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, ErrNoStats
	}
	if err != nil {
		return snap, fmt.Errorf("latest stats: %w", err)
	}
	if snap.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
		return snap, fmt.Errorf("latest stats: bad timestamp %q: %w", takenAt, err)
	}
	return snap, nil
}

// CountDecisions returns the total number of stored decisions.
func (s *Store) CountDecisions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return n, nil
}
