// Package plc implements the holding-register wire protocol spoken by the
// line's field controller.
//
// The controller exposes a fixed register map: a control-bit register, a
// status-bit register, a global position counter, and one slot block per
// sorting channel. Each slot occupies three 16-bit words: a 32-bit signed
// weight (two words, most-significant first) followed by a 16-bit grade.
//
// # Critical Patterns
//
// CP-1: Single In-Flight Request
//   - The controller cannot pipeline requests
//   - Every client operation holds an internal mutex for its full round trip
//
// CP-2: Batched Snapshot Cycle
//   - ReadSnapshot covers every channel's slot block with ONE read request
//   - WriteSnapshot flushes all mutated grades with ONE write request
//   - Round trips per cycle are therefore O(1) in the number of mutated slots
//
// CP-3: Bit-Index Inversion
//   - The controller's word registers are byte-swapped at the bit level
//   - Documented bit b in [0,7] lives at wire bit b+8; b in [8,15] at b-8
//   - Every control/status bit access applies this transform
//
// Failure semantics: operations return tagged errors (never panic), there is
// no automatic retry, and a failed snapshot read yields no partial data.
package plc
