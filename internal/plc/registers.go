package plc

import (
	"fmt"
	"sort"
)

// Grade sentinels used in slot grade words.
const (
	// GradePending marks a slot the controller has filled with a weight
	// but no decision yet. The orchestrator only ever grades pending slots.
	GradePending uint16 = 100

	// GradeReject routes an item to the reject lane. Also the fallback
	// when no rule matches.
	GradeReject uint16 = 0
)

// SlotWords is the register footprint of one slot: a 32-bit signed weight
// (two words, most-significant first) followed by a 16-bit grade word.
const SlotWords = 3

// slot-internal word offsets
const (
	slotWeightOffset = 0
	slotGradeOffset  = 2
)

// RegisterMap describes the controller's fixed register layout.
//
// The map is configuration, not discovery: it must match the controller's
// program. Channel IDs are single letters in practice ("A".."D") but any
// non-empty string is accepted.
type RegisterMap struct {
	// ControlRegister holds edge-triggered command bits (documented bit
	// indexes; the wire transform is applied by the client).
	ControlRegister uint16

	// StatusRegister holds controller status bits, including the item
	// pulse used to advance the position counter.
	StatusRegister uint16

	// CounterRegister holds the controller's own 32-bit item count
	// (two words, most-significant first).
	CounterRegister uint16

	// SlotsPerChannel is N, identical for every channel.
	SlotsPerChannel int

	// Channels maps channel id to the base address of its slot block.
	Channels map[string]uint16
}

// Validate checks the map for overlapping or degenerate channel blocks.
func (m *RegisterMap) Validate() error {
	if m.SlotsPerChannel <= 0 {
		return fmt.Errorf("register map: slots per channel must be positive, got %d", m.SlotsPerChannel)
	}
	if len(m.Channels) == 0 {
		return fmt.Errorf("register map: no channels configured")
	}

	type block struct {
		id   string
		base uint16
	}
	span := m.SlotsPerChannel * SlotWords
	blocks := make([]block, 0, len(m.Channels))
	for id, base := range m.Channels {
		if id == "" {
			return fmt.Errorf("register map: empty channel id")
		}
		// Block ends are compared in int so a base near 65535 cannot
		// wrap and slip past the overlap check.
		if int(base)+span > 0x10000 {
			return fmt.Errorf("register map: channel %s block (base %d, %d words) exceeds the 16-bit address space",
				id, base, span)
		}
		blocks = append(blocks, block{id: id, base: base})
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].base < blocks[j].base })
	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1], blocks[i]
		if int(cur.base) < int(prev.base)+span {
			return fmt.Errorf("register map: channel %s block (base %d) overlaps channel %s (base %d, %d words)",
				cur.id, cur.base, prev.id, prev.base, span)
		}
	}
	return nil
}

// GradeAddress returns the register address of the grade word for the
// given 1-based slot sequence.
func (m *RegisterMap) GradeAddress(channel string, sequence int) (uint16, error) {
	base, ok := m.Channels[channel]
	if !ok {
		return 0, fmt.Errorf("register map: unknown channel %q", channel)
	}
	if sequence < 1 || sequence > m.SlotsPerChannel {
		return 0, fmt.Errorf("register map: sequence %d out of range [1,%d]", sequence, m.SlotsPerChannel)
	}
	return base + uint16((sequence-1)*SlotWords+slotGradeOffset), nil
}

// span returns the minimal contiguous register range [start, start+count)
// covering every channel's slot block.
func (m *RegisterMap) span() (start uint16, count uint16) {
	first := true
	for _, base := range m.Channels {
		end := base + uint16(m.SlotsPerChannel*SlotWords)
		if first {
			start, count = base, end-base
			first = false
			continue
		}
		if base < start {
			count += start - base
			start = base
		}
		if end > start+count {
			count = end - start
		}
	}
	return start, count
}

// channelIDs returns the configured channel ids sorted by base address,
// so snapshot iteration order is stable.
func (m *RegisterMap) channelIDs() []string {
	ids := make([]string, 0, len(m.Channels))
	for id := range m.Channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.Channels[ids[i]] < m.Channels[ids[j]] })
	return ids
}
