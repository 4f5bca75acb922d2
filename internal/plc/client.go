package plc

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Function codes of the holding-register protocol.
const (
	fcReadWords  byte = 0x03
	fcWriteWord  byte = 0x06
	fcWriteWords byte = 0x10
)

const (
	mbapHeaderLen   = 7
	protocolID      = 0
	maxResponseBody = 256
)

// DefaultTimeout bounds every request round trip. In-flight I/O is bounded
// by this socket deadline rather than forcibly cancelled; shutdown joins at
// the sleep boundary and the deadline covers the rest.
const DefaultTimeout = 500 * time.Millisecond

// Client is the register-protocol client for one field controller.
//
// The connection is established lazily on first use and re-established
// after any transport failure. Every operation holds the client mutex for
// its full round trip: the controller does not support pipelined requests,
// so single-flight ordering is enforced here rather than trusted to
// callers.
//
// Thread-safety model:
//   - All exported methods are safe from any goroutine
//   - Exactly one request is in flight at any time
type Client struct {
	mu      sync.Mutex
	addr    string
	unitID  byte
	timeout time.Duration
	regs    *RegisterMap

	conn net.Conn
	txID uint16
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request socket deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUnitID sets the protocol unit identifier (default 1).
func WithUnitID(id byte) Option {
	return func(c *Client) { c.unitID = id }
}

// NewClient creates a client for the controller at addr (host:port) with
// the given register map. No connection is made until the first operation
// or an explicit Connect.
func NewClient(addr string, regs *RegisterMap, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		unitID:  1,
		timeout: DefaultTimeout,
		regs:    regs,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the connection if it is not already up. Idempotent.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConn()
}

// Close tears down the connection. Idempotent; the next operation redials.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected reports whether a connection is currently established.
// It does not probe the peer; a stale connection is detected by the next
// request.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ensureConn dials if needed. Caller must hold c.mu.
func (c *Client) ensureConn() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return connError("connect", 0, err)
	}
	slog.Debug("controller connected", "addr", c.addr)
	c.conn = conn
	return nil
}

// dropConn closes the connection after a transport failure so the next
// operation redials. Caller must hold c.mu.
func (c *Client) dropConn() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// request performs one framed round trip and returns the response PDU
// (function code stripped, exception checked). Caller must hold c.mu.
func (c *Client) request(op string, addr uint16, fc byte, payload []byte) ([]byte, error) {
	if err := c.ensureConn(); err != nil {
		return nil, err
	}

	c.txID++
	frame := make([]byte, mbapHeaderLen+1+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], c.txID)
	binary.BigEndian.PutUint16(frame[2:4], protocolID)
	binary.BigEndian.PutUint16(frame[4:6], uint16(2+len(payload))) // unit + fc + payload
	frame[6] = c.unitID
	frame[7] = fc
	copy(frame[8:], payload)

	deadline := time.Now().Add(c.timeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.dropConn()
		return nil, connError(op, addr, err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.dropConn()
		return nil, connError(op, addr, err)
	}

	var header [mbapHeaderLen]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		c.dropConn()
		return nil, connError(op, addr, err)
	}
	if got := binary.BigEndian.Uint16(header[0:2]); got != c.txID {
		c.dropConn()
		return nil, decodeError(op, addr, fmt.Errorf("transaction id mismatch: sent %d, got %d", c.txID, got))
	}
	bodyLen := int(binary.BigEndian.Uint16(header[4:6]))
	if bodyLen < 2 || bodyLen > maxResponseBody {
		c.dropConn()
		return nil, decodeError(op, addr, fmt.Errorf("implausible response length %d", bodyLen))
	}

	body := make([]byte, bodyLen-1) // unit id already consumed in header
	if _, err := io.ReadFull(c.conn, body); err != nil {
		c.dropConn()
		return nil, connError(op, addr, err)
	}

	respFC := body[0]
	if respFC == fc|0x80 {
		if len(body) < 2 {
			return nil, decodeError(op, addr, fmt.Errorf("truncated exception frame"))
		}
		return nil, exceptionError(op, addr, body[1])
	}
	if respFC != fc {
		c.dropConn()
		return nil, decodeError(op, addr, fmt.Errorf("function code mismatch: sent 0x%02x, got 0x%02x", fc, respFC))
	}
	return body[1:], nil
}

// ReadWords reads count holding registers starting at addr.
func (c *Client) ReadWords(addr, count uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readWordsLocked("read words", addr, count)
}

func (c *Client) readWordsLocked(op string, addr, count uint16) ([]uint16, error) {
	var payload [4]byte
	binary.BigEndian.PutUint16(payload[0:2], addr)
	binary.BigEndian.PutUint16(payload[2:4], count)

	resp, err := c.request(op, addr, fcReadWords, payload[:])
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 || int(resp[0]) != len(resp)-1 || int(resp[0]) != int(count)*2 {
		return nil, decodeError(op, addr, fmt.Errorf("byte count %d does not match %d requested words", resp[0], count))
	}
	words := make([]uint16, count)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(resp[1+2*i : 3+2*i])
	}
	return words, nil
}

// WriteWord writes one holding register.
func (c *Client) WriteWord(addr, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeWordLocked("write word", addr, value)
}

func (c *Client) writeWordLocked(op string, addr, value uint16) error {
	var payload [4]byte
	binary.BigEndian.PutUint16(payload[0:2], addr)
	binary.BigEndian.PutUint16(payload[2:4], value)
	_, err := c.request(op, addr, fcWriteWord, payload[:])
	return err
}

// WriteWords writes a contiguous run of holding registers in one request.
func (c *Client) WriteWords(addr uint16, values []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeWordsLocked("write words", addr, values)
}

func (c *Client) writeWordsLocked(op string, addr uint16, values []uint16) error {
	if len(values) == 0 {
		return nil
	}
	payload := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(payload[0:2], addr)
	binary.BigEndian.PutUint16(payload[2:4], uint16(len(values)))
	payload[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(payload[5+2*i:7+2*i], v)
	}
	_, err := c.request(op, addr, fcWriteWords, payload)
	return err
}

// ReadCounter reads the controller's 32-bit item counter.
func (c *Client) ReadCounter() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	words, err := c.readWordsLocked("read counter", c.regs.CounterRegister, 2)
	if err != nil {
		return 0, err
	}
	return uint32(words[0])<<16 | uint32(words[1]), nil
}

// Int32FromWords assembles a signed 32-bit value from two big-endian words,
// most-significant first. This is the wire encoding of slot weights.
func Int32FromWords(hi, lo uint16) int32 {
	return int32(uint32(hi)<<16 | uint32(lo))
}

// WordsFromInt32 splits a signed 32-bit value into two big-endian words,
// most-significant first.
func WordsFromInt32(v int32) (hi, lo uint16) {
	u := uint32(v)
	return uint16(u >> 16), uint16(u)
}
