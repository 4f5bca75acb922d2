// Package sorter runs the line's decision cycle.
//
// The orchestrator wakes on a fixed interval (~50 ms), takes one bulk
// snapshot of every channel's slots, grades each pending slot, and
// flushes all mutations with at most one batch write. Network round trips
// per cycle are 1 read + at most 1 write, independent of how many slots
// were graded.
//
// # Critical Patterns
//
// CP-1: Single-Cycle Snapshot Ownership
//   - The snapshot lives and dies inside one cycle on the loop goroutine
//   - A failed write is counted and dropped; the next cycle's fresh read
//     supersedes the stale in-memory state (consistency across cycles,
//     not within one)
//
// CP-2: Override Before Scoring
//   - Within a cycle, one-shot override tasks are checked before weight
//     or template evaluation for the same slot
//   - Overrides bind to the item at an exact counter position and only
//     ever apply to a channel's first slot
//
// CP-3: Never Block the Loop
//   - Configuration mutators share a coarse mutex with the loop
//   - Decision notifications go through a bounded drop-counting sink,
//     never a blocking call
package sorter
