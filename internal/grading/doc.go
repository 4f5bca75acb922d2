// Package grading converts aligned sensor readings into output lanes.
//
// Two rule systems coexist:
//
//   - A static WeightRange table: ascending [min,max] bands, first match
//     wins. Used when only the weigher is trusted.
//   - Templates: per-sensor profiles with reject bands, accept bands, and
//     an optional composite score table combining both sensors. Used when
//     content analysis participates in the decision.
//
// Accept bands and score entries name a primary and an alternate lane.
// Lines are often built with duplicate physical lanes for one logical
// grade; picking between them by wall-clock second parity halves the load
// on each. The parity function takes "now" as a parameter so tests can
// pin it.
//
// Templates are immutable after validation. All validation happens at
// configuration-load time; Evaluate never fails, it only declines.
package grading
