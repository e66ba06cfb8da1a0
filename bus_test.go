package i2cmaster_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cmaster"
	"github.com/mklimuk/i2cmaster/timer"
)

// fakePort records every engine interaction and lets tests script the status
// register by hand.
type fakePort struct {
	status i2cmaster.StatusFlags

	writes  []byte
	reads   []byte
	cleared i2cmaster.StatusFlags
	ackMode i2cmaster.AckMode

	active    bool
	irqOn     bool
	starts    int
	stops     int
	addrAcked int
}

func (p *fakePort) Activate()         { p.active = true }
func (p *fakePort) Deactivate()       { p.active = false }
func (p *fakePort) EnableInterrupts() { p.irqOn = true }
func (p *fakePort) DisableInterrupts() {
	p.irqOn = false
}
func (p *fakePort) GenerateStart() { p.starts++ }
func (p *fakePort) GenerateStop()  { p.stops++ }
func (p *fakePort) SetAckMode(mode i2cmaster.AckMode) {
	p.ackMode = mode
}
func (p *fakePort) WriteData(b byte) { p.writes = append(p.writes, b) }
func (p *fakePort) ReadData() byte {
	b := p.reads[0]
	p.reads = p.reads[1:]
	return b
}
func (p *fakePort) ReadStatus() i2cmaster.StatusFlags { return p.status }
func (p *fakePort) ClearAddrAck() {
	p.addrAcked++
	p.status &^= i2cmaster.FlagAddrAcked
}
func (p *fakePort) ClearErrors(flags i2cmaster.StatusFlags) {
	p.cleared |= flags
	p.status &^= flags
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBus(t *testing.T, opts ...i2cmaster.Option) (*i2cmaster.Bus, *fakePort, *timer.Service, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	svc := timer.New(timer.WithNow(clk.Now))
	port := &fakePort{}
	bus := i2cmaster.New(port, svc, i2cmaster.DefaultConfig(), opts...)
	require.NoError(t, bus.Start())
	return bus, port, svc, clk
}

func TestBus_CallRejections(t *testing.T) {
	t.Run("write without reservation", func(t *testing.T) {
		bus, port, _, _ := newTestBus(t)
		err := bus.Write(0x44, []byte{0x2C, 0x06})
		assert.ErrorIs(t, err, i2cmaster.ErrNotReserved)
		assert.Equal(t, i2cmaster.StateIdle, bus.State())
		assert.False(t, port.irqOn)
		assert.Zero(t, port.starts)
	})
	t.Run("read without reservation", func(t *testing.T) {
		bus, port, _, _ := newTestBus(t)
		err := bus.Read(0x44, make([]byte, 6))
		assert.ErrorIs(t, err, i2cmaster.ErrNotReserved)
		assert.Equal(t, i2cmaster.StateIdle, bus.State())
		assert.False(t, port.irqOn)
	})
	t.Run("double reservation", func(t *testing.T) {
		bus, _, _, _ := newTestBus(t)
		require.NoError(t, bus.Reserve())
		assert.ErrorIs(t, bus.Reserve(), i2cmaster.ErrAlreadyReserved)
	})
	t.Run("release without reservation", func(t *testing.T) {
		bus, _, _, _ := newTestBus(t)
		assert.ErrorIs(t, bus.Release(), i2cmaster.ErrNotReserved)
	})
	t.Run("second operation while busy", func(t *testing.T) {
		bus, _, _, _ := newTestBus(t)
		require.NoError(t, bus.Reserve())
		require.NoError(t, bus.Write(0x44, []byte{0x01}))
		assert.ErrorIs(t, bus.Write(0x44, []byte{0x01}), i2cmaster.ErrBusy)
		assert.ErrorIs(t, bus.Read(0x44, make([]byte, 1)), i2cmaster.ErrBusy)
	})
	t.Run("zero length read", func(t *testing.T) {
		bus, _, _, _ := newTestBus(t)
		require.NoError(t, bus.Reserve())
		assert.ErrorIs(t, bus.Read(0x44, nil), i2cmaster.ErrInvalidArgument)
	})
	t.Run("operation before start", func(t *testing.T) {
		port := &fakePort{}
		bus := i2cmaster.New(port, timer.New(), i2cmaster.DefaultConfig())
		require.NoError(t, bus.Reserve())
		assert.ErrorIs(t, bus.Write(0x44, []byte{0x01}), i2cmaster.ErrNotStarted)
	})
}

func TestBus_MultiByteWrite(t *testing.T) {
	bus, port, _, _ := newTestBus(t)
	require.NoError(t, bus.Reserve())
	require.NoError(t, bus.Write(0x44, []byte{0x2C, 0x06}))

	assert.True(t, port.active)
	assert.True(t, port.irqOn)
	assert.Equal(t, 1, port.starts)
	assert.Equal(t, i2cmaster.StateWriteStart, bus.State())
	assert.Equal(t, i2cmaster.StatusInProgress, bus.OpStatus())

	port.status = i2cmaster.FlagStartSent
	bus.OnEvent()
	require.Equal(t, []byte{0x44 << 1}, port.writes)
	assert.Equal(t, i2cmaster.StateWriteAddress, bus.State())

	port.status = i2cmaster.FlagAddrAcked
	bus.OnEvent()
	assert.Equal(t, 1, port.addrAcked)
	require.Equal(t, []byte{0x44 << 1, 0x2C}, port.writes)
	assert.Equal(t, i2cmaster.StateWriteData, bus.State())

	port.status = i2cmaster.FlagTxEmpty
	bus.OnEvent()
	require.Equal(t, []byte{0x44 << 1, 0x2C, 0x06}, port.writes)

	// Buffer drained but the transfer is not finished yet: nothing happens.
	port.status = i2cmaster.FlagTxEmpty
	bus.OnEvent()
	assert.Equal(t, i2cmaster.StateWriteData, bus.State())
	assert.Zero(t, port.stops)

	port.status = i2cmaster.FlagTxEmpty | i2cmaster.FlagTransferDone
	bus.OnEvent()
	assert.Equal(t, i2cmaster.StateIdle, bus.State())
	assert.Equal(t, i2cmaster.StatusOK, bus.OpStatus())
	assert.Equal(t, i2cmaster.ErrorNone, bus.LastError())
	assert.Equal(t, 2, bus.BytesTransferred())
	assert.Equal(t, 1, port.stops)
	assert.False(t, port.irqOn)
	assert.False(t, port.active)
}

func TestBus_ZeroLengthWrite(t *testing.T) {
	bus, port, _, _ := newTestBus(t)
	require.NoError(t, bus.Reserve())
	require.NoError(t, bus.Write(0x44, nil))

	port.status = i2cmaster.FlagStartSent
	bus.OnEvent()
	port.status = i2cmaster.FlagAddrAcked
	bus.OnEvent()

	assert.Equal(t, i2cmaster.StateIdle, bus.State())
	assert.Equal(t, i2cmaster.StatusOK, bus.OpStatus())
	assert.Zero(t, bus.BytesTransferred())
	assert.Equal(t, 1, port.stops)
}

func TestBus_SingleByteRead(t *testing.T) {
	bus, port, _, _ := newTestBus(t)
	require.NoError(t, bus.Reserve())
	buf := make([]byte, 1)
	require.NoError(t, bus.Read(0x44, buf))

	port.status = i2cmaster.FlagStartSent
	bus.OnEvent()
	require.Equal(t, []byte{0x44<<1 | 1}, port.writes)
	assert.Equal(t, i2cmaster.StateReadAddress, bus.State())

	port.status = i2cmaster.FlagAddrAcked
	bus.OnEvent()
	// Nack armed and stop issued before the only byte arrives.
	assert.Equal(t, i2cmaster.Nack, port.ackMode)
	assert.Equal(t, 1, port.stops)
	assert.Equal(t, i2cmaster.StateReadData, bus.State())

	port.reads = []byte{0xAB}
	port.status = i2cmaster.FlagRxReady
	bus.OnEvent()
	assert.Equal(t, i2cmaster.StateIdle, bus.State())
	assert.Equal(t, i2cmaster.StatusOK, bus.OpStatus())
	assert.Equal(t, []byte{0xAB}, buf)
	assert.Equal(t, 1, bus.BytesTransferred())
	// No second stop for a single byte read.
	assert.Equal(t, 1, port.stops)
}

func TestBus_MultiByteRead(t *testing.T) {
	bus, port, _, _ := newTestBus(t)
	require.NoError(t, bus.Reserve())
	buf := make([]byte, 3)
	require.NoError(t, bus.Read(0x44, buf))

	port.status = i2cmaster.FlagStartSent
	bus.OnEvent()
	port.status = i2cmaster.FlagAddrAcked
	bus.OnEvent()
	assert.Equal(t, i2cmaster.Ack, port.ackMode)
	assert.Zero(t, port.stops)

	port.reads = []byte{0x01, 0x02, 0x03}
	port.status = i2cmaster.FlagRxReady
	bus.OnEvent()
	assert.Equal(t, i2cmaster.Ack, port.ackMode)

	bus.OnEvent()
	// Next byte is the last one: nack armed and stop issued ahead of it.
	assert.Equal(t, i2cmaster.Nack, port.ackMode)
	assert.Equal(t, 1, port.stops)
	assert.Equal(t, i2cmaster.StateReadData, bus.State())

	bus.OnEvent()
	assert.Equal(t, i2cmaster.StateIdle, bus.State())
	assert.Equal(t, i2cmaster.StatusOK, bus.OpStatus())
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf)
	assert.Equal(t, 3, bus.BytesTransferred())
}

func TestBus_SpuriousEventIgnored(t *testing.T) {
	bus, port, _, _ := newTestBus(t)
	require.NoError(t, bus.Reserve())
	require.NoError(t, bus.Write(0x44, []byte{0x01}))

	// Wrong flag for the current state: delivery is a no-op.
	port.status = i2cmaster.FlagRxReady
	bus.OnEvent()
	assert.Equal(t, i2cmaster.StateWriteStart, bus.State())
	assert.Empty(t, port.writes)
	assert.Equal(t, i2cmaster.StatusInProgress, bus.OpStatus())
}

func TestBus_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		flags    i2cmaster.StatusFlags
		expected i2cmaster.ErrorKind
	}{
		{"ack failure", i2cmaster.FlagAckFail, i2cmaster.ErrorAckFail},
		{"bus error", i2cmaster.FlagBusError, i2cmaster.ErrorBusError},
		{"protocol timeout", i2cmaster.FlagProtoTimeout, i2cmaster.ErrorProtocolTimeout},
		{"packet error code", i2cmaster.FlagPECError, i2cmaster.ErrorPEC},
		{"unexpected", 0, i2cmaster.ErrorUnexpectedInterrupt},
		// Fixed priority: ack failure wins over everything else.
		{"priority", i2cmaster.FlagAckFail | i2cmaster.FlagBusError | i2cmaster.FlagPECError, i2cmaster.ErrorAckFail},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bus, port, _, _ := newTestBus(t)
			require.NoError(t, bus.Reserve())
			require.NoError(t, bus.Write(0x44, []byte{0x01}))

			port.status = test.flags
			bus.OnError()
			assert.Equal(t, i2cmaster.StateIdle, bus.State())
			assert.Equal(t, i2cmaster.StatusFailed, bus.OpStatus())
			assert.Equal(t, test.expected, bus.LastError())
			assert.Equal(t, 1, port.stops)
			assert.False(t, port.irqOn)
			assert.Equal(t, test.flags&i2cmaster.ErrorFlags, port.cleared)
		})
	}
}

func TestBus_AckFailureDuringAddress(t *testing.T) {
	bus, port, _, _ := newTestBus(t)
	require.NoError(t, bus.Reserve())
	require.NoError(t, bus.Write(0x44, []byte{0x2C, 0x06}))

	port.status = i2cmaster.FlagStartSent
	bus.OnEvent()
	assert.Equal(t, i2cmaster.StateWriteAddress, bus.State())

	port.status = i2cmaster.FlagAckFail
	bus.OnError()
	assert.Equal(t, i2cmaster.StateIdle, bus.State())
	assert.Equal(t, i2cmaster.ErrorAckFail, bus.LastError())
	assert.Equal(t, 1, port.stops)
	assert.Less(t, bus.BytesTransferred(), 2)

	// The bus can be released and reused right away.
	require.NoError(t, bus.Release())
	require.NoError(t, bus.Reserve())
	require.NoError(t, bus.Write(0x44, []byte{0x01}))
	assert.Equal(t, i2cmaster.ErrorNone, bus.LastError())
}

func TestBus_GuardTimeout(t *testing.T) {
	bus, port, svc, clk := newTestBus(t)
	require.NoError(t, bus.Reserve())
	require.NoError(t, bus.Write(0x44, []byte{0x2C, 0x06}))

	// No earlier than the configured guard time.
	clk.advance(99 * time.Millisecond)
	svc.Run()
	assert.Equal(t, i2cmaster.StatusInProgress, bus.OpStatus())
	assert.Zero(t, port.stops)

	clk.advance(time.Millisecond)
	svc.Run()
	assert.Equal(t, i2cmaster.StateIdle, bus.State())
	assert.Equal(t, i2cmaster.StatusFailed, bus.OpStatus())
	assert.Equal(t, i2cmaster.ErrorGuardTimeout, bus.LastError())
	assert.Equal(t, 1, port.stops)

	// Exactly one failure transition: further pumps change nothing.
	clk.advance(time.Second)
	svc.Run()
	assert.Equal(t, i2cmaster.ErrorGuardTimeout, bus.LastError())
	assert.Equal(t, 1, port.stops)
}

func TestBus_FirstErrorWins(t *testing.T) {
	bus, port, svc, clk := newTestBus(t)
	require.NoError(t, bus.Reserve())
	require.NoError(t, bus.Write(0x44, []byte{0x01}))

	port.status = i2cmaster.FlagAckFail
	bus.OnError()
	require.Equal(t, i2cmaster.ErrorAckFail, bus.LastError())

	// A guard timer that would have fired for the same transaction was
	// disarmed by the cleanup; nothing overwrites the recorded error.
	clk.advance(time.Second)
	svc.Run()
	assert.Equal(t, i2cmaster.ErrorAckFail, bus.LastError())
}

func TestBus_IdleCleanupIdempotent(t *testing.T) {
	bus, port, _, _ := newTestBus(t)
	require.NoError(t, bus.Reserve())
	require.NoError(t, bus.Write(0x44, nil))
	port.status = i2cmaster.FlagStartSent
	bus.OnEvent()
	port.status = i2cmaster.FlagAddrAcked
	bus.OnEvent()
	require.Equal(t, i2cmaster.StatusOK, bus.OpStatus())
	stops := port.stops

	// A late error delivery for the already terminated transaction must not
	// record an error nor re-issue the stop condition.
	port.status = i2cmaster.FlagBusError
	bus.OnError()
	assert.Equal(t, i2cmaster.ErrorNone, bus.LastError())
	assert.Equal(t, i2cmaster.StatusOK, bus.OpStatus())
	assert.Equal(t, stops, port.stops)
}

func TestBus_FaultInjection(t *testing.T) {
	t.Run("wrong address", func(t *testing.T) {
		faults := &i2cmaster.Faults{WrongAddress: true, BadAddress: 0x45}
		bus, port, _, _ := newTestBus(t, i2cmaster.WithFaultInjector(faults))
		require.NoError(t, bus.Reserve())
		require.NoError(t, bus.Write(0x44, []byte{0x01}))
		port.status = i2cmaster.FlagStartSent
		bus.OnEvent()
		assert.Equal(t, []byte{0x45 << 1}, port.writes)
	})
	t.Run("forced nack", func(t *testing.T) {
		faults := &i2cmaster.Faults{ForceNack: true}
		bus, port, _, _ := newTestBus(t, i2cmaster.WithFaultInjector(faults))
		require.NoError(t, bus.Reserve())
		require.NoError(t, bus.Write(0x44, []byte{0x01}))
		port.status = i2cmaster.FlagBusError
		bus.OnError()
		assert.Equal(t, i2cmaster.ErrorAckFail, bus.LastError())
	})
	t.Run("short guard time", func(t *testing.T) {
		faults := &i2cmaster.Faults{ShortGuard: true}
		bus, _, svc, clk := newTestBus(t, i2cmaster.WithFaultInjector(faults))
		require.NoError(t, bus.Reserve())
		require.NoError(t, bus.Write(0x44, []byte{0x01}))
		clk.advance(time.Millisecond)
		svc.Run()
		assert.Equal(t, i2cmaster.ErrorGuardTimeout, bus.LastError())
	})
}
