package plc

import (
	"fmt"
	"time"
)

// WireBit maps a documented bit index to its physical position in the
// register word. The controller stores its bit registers byte-swapped, so
// documented bits 0..7 live in the high byte on the wire and 8..15 in the
// low byte. Every control/status bit access goes through this transform.
func WireBit(bit uint) uint {
	if bit < 8 {
		return bit + 8
	}
	return bit - 8
}

// ReadBit reads the documented bit from a bit register.
func (c *Client) ReadBit(addr uint16, bit uint) (bool, error) {
	if bit > 15 {
		return false, decodeError("read bit", addr, fmt.Errorf("bit index %d out of range [0,15]", bit))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	words, err := c.readWordsLocked("read bit", addr, 1)
	if err != nil {
		return false, err
	}
	return words[0]&(1<<WireBit(bit)) != 0, nil
}

// WriteBit sets or clears the documented bit via read-modify-write on its
// register. The whole sequence runs under the client mutex, so no other
// operation can interleave between the read and the write.
func (c *Client) WriteBit(addr uint16, bit uint, on bool) error {
	if bit > 15 {
		return decodeError("write bit", addr, fmt.Errorf("bit index %d out of range [0,15]", bit))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeBitLocked("write bit", addr, bit, on)
}

func (c *Client) writeBitLocked(op string, addr uint16, bit uint, on bool) error {
	words, err := c.readWordsLocked(op, addr, 1)
	if err != nil {
		return err
	}
	mask := uint16(1) << WireBit(bit)
	word := words[0]
	if on {
		word |= mask
	} else {
		word &^= mask
	}
	return c.writeWordLocked(op, addr, word)
}

// PulseBit sets the documented bit, holds it for d, then clears it. The
// controller treats these bits as edge-triggered remote commands. The
// client mutex is released during the hold so the orchestrator cycle is
// not stalled behind the pulse.
func (c *Client) PulseBit(addr uint16, bit uint, d time.Duration) error {
	if err := c.WriteBit(addr, bit, true); err != nil {
		return err
	}
	time.Sleep(d)
	return c.WriteBit(addr, bit, false)
}
