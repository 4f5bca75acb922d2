package plc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sortline/internal/testutil"
)

func testMap() *RegisterMap {
	return &RegisterMap{
		ControlRegister: 2,
		StatusRegister:  3,
		CounterRegister: 4,
		SlotsPerChannel: 2,
		Channels: map[string]uint16{
			"A": 100,
			"B": 106,
		},
	}
}

func newTestClient(t *testing.T) (*Client, *testutil.ControllerSim) {
	t.Helper()
	sim, err := testutil.NewControllerSim()
	require.NoError(t, err)
	t.Cleanup(sim.Close)

	c := NewClient(sim.Addr(), testMap(), WithTimeout(time.Second))
	t.Cleanup(func() { _ = c.Close() })
	return c, sim
}

func TestClient_ReadWords(t *testing.T) {
	c, sim := newTestClient(t)
	sim.Bank.Set(100, 0x1234)
	sim.Bank.Set(101, 0x5678)

	words, err := c.ReadWords(100, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234, 0x5678}, words)
}

func TestClient_WriteWord_RoundTrip(t *testing.T) {
	c, sim := newTestClient(t)

	require.NoError(t, c.WriteWord(200, 42))
	assert.Equal(t, uint16(42), sim.Bank.Get(200))
}

func TestClient_WriteWords_SingleRequest(t *testing.T) {
	c, sim := newTestClient(t)

	require.NoError(t, c.WriteWords(300, []uint16{1, 2, 3, 4}))

	_, writes := sim.RequestCounts()
	assert.Equal(t, 1, writes, "a multi-word write must be one request")
	assert.Equal(t, uint16(3), sim.Bank.Get(302))
}

func TestClient_ConnectIdempotent(t *testing.T) {
	c, _ := newTestClient(t)

	require.NoError(t, c.Connect())
	require.NoError(t, c.Connect())
	assert.True(t, c.IsConnected())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestClient_LazyReconnectAfterDrop(t *testing.T) {
	c, sim := newTestClient(t)
	sim.Bank.Set(100, 7)

	_, err := c.ReadWords(100, 1)
	require.NoError(t, err)

	sim.DropNext()
	_, err = c.ReadWords(100, 1)
	require.Error(t, err)
	assert.True(t, IsConnectionError(err), "dropped connection should surface as a connection error")
	assert.False(t, c.IsConnected())

	// Next operation redials on its own.
	words, err := c.ReadWords(100, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), words[0])
}

func TestClient_ControllerException(t *testing.T) {
	c, sim := newTestClient(t)

	sim.FailNext(1)
	_, err := c.ReadWords(100, 1)
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
	assert.False(t, IsConnectionError(err))
}

func TestClient_DialFailure(t *testing.T) {
	// Reserve a port, then close it so nothing is listening.
	sim, err := testutil.NewControllerSim()
	require.NoError(t, err)
	addr := sim.Addr()
	sim.Close()

	c := NewClient(addr, testMap(), WithTimeout(200*time.Millisecond))
	_, err = c.ReadWords(0, 1)
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestInt32Words_RoundTrip(t *testing.T) {
	cases := []int32{0, 1, -1, 500, -500, 1<<30 + 12345, -(1 << 30)}
	for _, v := range cases {
		hi, lo := WordsFromInt32(v)
		assert.Equal(t, v, Int32FromWords(hi, lo), "value %d", v)
	}
}

func TestWireBit_Inversion(t *testing.T) {
	// Documented low byte maps to wire high byte and vice versa.
	assert.Equal(t, uint(8), WireBit(0))
	assert.Equal(t, uint(10), WireBit(2))
	assert.Equal(t, uint(15), WireBit(7))
	assert.Equal(t, uint(0), WireBit(8))
	assert.Equal(t, uint(2), WireBit(10))
	assert.Equal(t, uint(7), WireBit(15))

	// Involution: applying the transform twice is the identity.
	for b := uint(0); b < 16; b++ {
		assert.Equal(t, b, WireBit(WireBit(b)))
	}
}

func TestClient_WriteBit_TogglesPhysicalBit(t *testing.T) {
	c, sim := newTestClient(t)

	// Writing documented bit 2 must toggle physical bit 10.
	require.NoError(t, c.WriteBit(2, 2, true))
	assert.Equal(t, uint16(1<<10), sim.Bank.Get(2))

	// Round trip through the client's own read path.
	on, err := c.ReadBit(2, 2)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, c.WriteBit(2, 2, false))
	assert.Equal(t, uint16(0), sim.Bank.Get(2))
}

func TestClient_WriteBit_PreservesNeighbours(t *testing.T) {
	c, sim := newTestClient(t)
	sim.Bank.Set(2, 0xA001)

	require.NoError(t, c.WriteBit(2, 0, true)) // physical bit 8

	assert.Equal(t, uint16(0xA001|1<<8), sim.Bank.Get(2))
}

func TestClient_PulseBit(t *testing.T) {
	c, sim := newTestClient(t)

	done := make(chan error, 1)
	go func() { done <- c.PulseBit(2, 5, 30*time.Millisecond) }()

	// The bit must be observable as set while the pulse is held.
	deadline := time.After(time.Second)
	for sim.Bank.Get(2)&(1<<WireBit(5)) == 0 {
		select {
		case <-deadline:
			t.Fatal("pulse bit never went high")
		case <-time.After(time.Millisecond):
		}
	}

	require.NoError(t, <-done)
	assert.Equal(t, uint16(0), sim.Bank.Get(2)&(1<<WireBit(5)), "pulse must clear the bit")
}

func TestClient_ReadCounter(t *testing.T) {
	c, sim := newTestClient(t)
	sim.Bank.Set(4, 0x0001)
	sim.Bank.Set(5, 0x86A0) // 0x000186A0 == 100000

	v, err := c.ReadCounter()
	require.NoError(t, err)
	assert.Equal(t, uint32(100000), v)
}
