// Package testutil provides test doubles shared across packages: an
// in-memory field-controller simulator speaking the real wire protocol,
// and a fixed clock for alternation-sensitive tests.
package testutil

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
)

// RegisterBank is a thread-safe in-memory holding-register file.
type RegisterBank struct {
	mu    sync.Mutex
	words map[uint16]uint16
}

// NewRegisterBank creates an empty bank; unset registers read as zero.
func NewRegisterBank() *RegisterBank {
	return &RegisterBank{words: make(map[uint16]uint16)}
}

// Get returns the word at addr.
func (b *RegisterBank) Get(addr uint16) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.words[addr]
}

// Set stores a word at addr.
func (b *RegisterBank) Set(addr, value uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.words[addr] = value
}

// SetInt32 stores a 32-bit signed value as two big-endian words,
// most-significant first, matching the slot weight encoding.
func (b *RegisterBank) SetInt32(addr uint16, v int32) {
	u := uint32(v)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.words[addr] = uint16(u >> 16)
	b.words[addr+1] = uint16(u)
}

// ControllerSim serves the holding-register wire protocol from a
// RegisterBank over a loopback TCP listener.
//
// Request counters let tests assert the batching contract (one read and at
// most one write per orchestrator cycle) without reaching into the client.
type ControllerSim struct {
	Bank *RegisterBank

	ln net.Listener

	mu       sync.Mutex
	reads    int
	writes   int
	failNext int  // respond to the next n requests with exception 0x04
	dropNext bool // close the connection instead of answering once
}

// NewControllerSim starts a simulator on an ephemeral loopback port.
func NewControllerSim() (*ControllerSim, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &ControllerSim{Bank: NewRegisterBank(), ln: ln}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the simulator's host:port.
func (s *ControllerSim) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the listener. Established connections end on their next read.
func (s *ControllerSim) Close() {
	_ = s.ln.Close()
}

// RequestCounts returns how many read and write requests were served.
func (s *ControllerSim) RequestCounts() (reads, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.writes
}

// ResetCounts zeroes the request counters.
func (s *ControllerSim) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads, s.writes = 0, 0
}

// FailNext makes the next n requests answer with a device-failure
// exception instead of data.
func (s *ControllerSim) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// DropNext makes the simulator close the connection instead of answering
// the next request, forcing the client through its reconnect path.
func (s *ControllerSim) DropNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropNext = true
}

func (s *ControllerSim) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *ControllerSim) serve(conn net.Conn) {
	defer conn.Close()
	for {
		var header [7]byte
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return
		}
		bodyLen := int(binary.BigEndian.Uint16(header[4:6]))
		if bodyLen < 2 || bodyLen > 512 {
			return
		}
		body := make([]byte, bodyLen-1)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		s.mu.Lock()
		if s.dropNext {
			s.dropNext = false
			s.mu.Unlock()
			return
		}
		fail := s.failNext > 0
		if fail {
			s.failNext--
		}
		s.mu.Unlock()

		fc := body[0]
		var resp []byte
		if fail {
			resp = []byte{fc | 0x80, 0x04}
		} else {
			resp = s.handle(fc, body[1:])
		}

		out := make([]byte, 7+len(resp))
		copy(out[0:4], header[0:4]) // echo transaction + protocol ids
		binary.BigEndian.PutUint16(out[4:6], uint16(1+len(resp)))
		out[6] = header[6] // echo unit id
		copy(out[7:], resp)
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func (s *ControllerSim) handle(fc byte, data []byte) []byte {
	switch fc {
	case 0x03: // read holding registers
		if len(data) < 4 {
			return []byte{fc | 0x80, 0x03}
		}
		addr := binary.BigEndian.Uint16(data[0:2])
		count := binary.BigEndian.Uint16(data[2:4])
		s.mu.Lock()
		s.reads++
		s.mu.Unlock()
		resp := make([]byte, 2+2*int(count))
		resp[0] = fc
		resp[1] = byte(2 * count)
		for i := uint16(0); i < count; i++ {
			binary.BigEndian.PutUint16(resp[2+2*i:4+2*i], s.Bank.Get(addr+i))
		}
		return resp

	case 0x06: // write single register
		if len(data) < 4 {
			return []byte{fc | 0x80, 0x03}
		}
		addr := binary.BigEndian.Uint16(data[0:2])
		value := binary.BigEndian.Uint16(data[2:4])
		s.Bank.Set(addr, value)
		s.mu.Lock()
		s.writes++
		s.mu.Unlock()
		return append([]byte{fc}, data[0:4]...)

	case 0x10: // write multiple registers
		if len(data) < 5 {
			return []byte{fc | 0x80, 0x03}
		}
		addr := binary.BigEndian.Uint16(data[0:2])
		count := binary.BigEndian.Uint16(data[2:4])
		if len(data) < 5+2*int(count) {
			return []byte{fc | 0x80, 0x03}
		}
		for i := uint16(0); i < count; i++ {
			s.Bank.Set(addr+i, binary.BigEndian.Uint16(data[5+2*i:7+2*i]))
		}
		s.mu.Lock()
		s.writes++
		s.mu.Unlock()
		resp := make([]byte, 5)
		resp[0] = fc
		copy(resp[1:5], data[0:4])
		return resp

	default:
		return []byte{fc | 0x80, 0x01}
	}
}
