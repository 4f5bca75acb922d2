package plc

import (
	"fmt"
	"log/slog"
)

// SlotRecord is one addressable sorting position inside a channel.
//
// Records are exclusively owned by the ChannelSnapshot that produced them
// and are only ever mutated during the cycle that read them.
type SlotRecord struct {
	// Sequence is the 1-based slot index, ascending and fixed per channel.
	Sequence int

	// Weight is the controller-measured item weight (signed, grams).
	Weight int32

	// Grade is the output lane: GradePending until decided, GradeReject
	// or a lane id afterwards.
	Grade uint16

	// GradeAddr is the register address of this slot's grade word.
	GradeAddr uint16
}

// ChannelSnapshot is a single-cycle structured view of every sortable slot,
// produced by one bulk read and flushed by at most one bulk write.
//
// INVARIANTS:
//   - Slots per channel are sequence-ascending
//   - A channel that failed to decode is absent from the map, never an
//     empty list, so "no items" and "read failed" stay distinguishable
//   - The snapshot is owned by one goroutine and never retained past the
//     cycle that wrote it back
type ChannelSnapshot struct {
	base  uint16
	words []uint16

	channels map[string][]SlotRecord
	order    []string

	// dirty word-index bounds into words; no mutation yet when lo > hi
	dirtyLo int
	dirtyHi int
}

// Channels returns channel ids in register-address order.
func (s *ChannelSnapshot) Channels() []string {
	return s.order
}

// Slots returns the slot records for a channel. ok is false for a channel
// that was configured but failed to decode.
func (s *ChannelSnapshot) Slots(channel string) (slots []SlotRecord, ok bool) {
	slots, ok = s.channels[channel]
	return slots, ok
}

// SetGrade records a grade decision in the snapshot. The mutation lands in
// both the structured record and the raw word image, so the next
// WriteSnapshot flushes it.
func (s *ChannelSnapshot) SetGrade(channel string, sequence int, grade uint16) error {
	slots, ok := s.channels[channel]
	if !ok {
		return fmt.Errorf("snapshot: unknown channel %q", channel)
	}
	if sequence < 1 || sequence > len(slots) {
		return fmt.Errorf("snapshot: channel %s sequence %d out of range [1,%d]", channel, sequence, len(slots))
	}

	rec := &slots[sequence-1]
	if rec.Grade == grade {
		return nil
	}
	rec.Grade = grade

	idx := int(rec.GradeAddr - s.base)
	s.words[idx] = grade
	if idx < s.dirtyLo {
		s.dirtyLo = idx
	}
	if idx > s.dirtyHi {
		s.dirtyHi = idx
	}
	return nil
}

// Dirty reports whether any grade changed since the read.
func (s *ChannelSnapshot) Dirty() bool {
	return s.dirtyLo <= s.dirtyHi
}

// PendingCount returns the number of slots still graded GradePending.
func (s *ChannelSnapshot) PendingCount() int {
	n := 0
	for _, slots := range s.channels {
		for _, rec := range slots {
			if rec.Grade == GradePending {
				n++
			}
		}
	}
	return n
}

// ReadSnapshot reads every channel's slot block with one request and
// decodes it into a fresh snapshot. On any failure it returns nil and the
// error: partial data is never surfaced.
func (c *Client) ReadSnapshot() (*ChannelSnapshot, error) {
	start, count := c.regs.span()

	words, err := c.ReadWords(start, count)
	if err != nil {
		return nil, err
	}

	snap := &ChannelSnapshot{
		base:     start,
		words:    words,
		channels: make(map[string][]SlotRecord, len(c.regs.Channels)),
		dirtyLo:  len(words),
		dirtyHi:  -1,
	}

	for _, id := range c.regs.channelIDs() {
		base := c.regs.Channels[id]
		lo := int(base - start)
		hi := lo + c.regs.SlotsPerChannel*SlotWords
		if lo < 0 || hi > len(words) {
			// Block fell outside the bulk read: leave the channel absent
			// rather than fabricating an empty slot list.
			slog.Warn("channel block outside read span", "channel", id, "base", base)
			continue
		}

		slots := make([]SlotRecord, c.regs.SlotsPerChannel)
		for i := range slots {
			off := lo + i*SlotWords
			slots[i] = SlotRecord{
				Sequence:  i + 1,
				Weight:    Int32FromWords(words[off+slotWeightOffset], words[off+slotWeightOffset+1]),
				Grade:     words[off+slotGradeOffset],
				GradeAddr: start + uint16(off+slotGradeOffset),
			}
		}
		snap.channels[id] = slots
		snap.order = append(snap.order, id)
	}

	return snap, nil
}

// WriteSnapshot flushes the snapshot's mutated grade words back to the
// controller. The write covers the minimal contiguous span containing
// every dirty word, so a cycle performs exactly one write request no
// matter how many slots it graded. A clean snapshot performs none.
//
// Untouched words inside the span are rewritten with the values observed
// by this cycle's read; the snapshot's single-cycle ownership makes that
// safe, and the controller only acts on grade transitions away from
// GradePending.
func (c *Client) WriteSnapshot(snap *ChannelSnapshot) error {
	if !snap.Dirty() {
		return nil
	}
	addr := snap.base + uint16(snap.dirtyLo)
	return c.WriteWords(addr, snap.words[snap.dirtyLo:snap.dirtyHi+1])
}
