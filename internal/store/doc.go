// Package store persists the sorting log.
//
// The log is append-only: one row per decision plus periodic statistics
// snapshots. SQLite in WAL mode lets the stats CLI read while the
// recorder writes.
//
// # Critical Patterns
//
// CP-1: Idempotent Appends
//   - Decision IDs are unique; re-inserting an already stored decision
//     is a silent no-op, so the recorder may retry freely
//
// CP-2: The Log Never Gates the Line
//   - Writes happen on the recorder goroutine, fed by the bounded
//     decision channel; a slow disk drops events instead of stalling
//     the decision cycle
package store
