package sim_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cmaster"
	"github.com/mklimuk/i2cmaster/sim"
	"github.com/mklimuk/i2cmaster/timer"
	"github.com/mklimuk/i2cmaster/tmphm"
)

type rig struct {
	bus    *i2cmaster.Bus
	ctrl   *sim.Controller
	timers *timer.Service
}

func newRig(t *testing.T, slave sim.Slave) *rig {
	t.Helper()
	ctrl := sim.NewController(slave)
	timers := timer.New(timer.WithNow(func() time.Time { return time.Unix(0, 0) }))
	bus := i2cmaster.New(ctrl, timers, i2cmaster.DefaultConfig())
	ctrl.Bind(bus)
	require.NoError(t, bus.Start())
	return &rig{bus: bus, ctrl: ctrl, timers: timers}
}

// pump runs the super loop until the engine settles, with a hard iteration
// bound so a wedged state machine fails the test instead of hanging it.
func (r *rig) pump(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		r.ctrl.Pump()
		r.timers.Run()
		if r.bus.State() == i2cmaster.StateIdle {
			return
		}
	}
	t.Fatalf("engine did not settle, stuck in %s", r.bus.State())
}

func TestController_MeasurementRoundTrip(t *testing.T) {
	slave := sim.NewSHT3x(sim.DefaultSHT3xAddr)
	slave.SetReading(23.5, 45.0)
	r := newRig(t, slave)

	require.NoError(t, r.bus.Reserve())
	require.NoError(t, r.bus.Write(sim.DefaultSHT3xAddr, tmphm.MeasureCmd[:]))
	r.pump(t)
	require.Equal(t, i2cmaster.StatusOK, r.bus.OpStatus())
	assert.Equal(t, tmphm.MeasureCmd[:], slave.LastCommand())
	assert.Equal(t, 2, r.bus.BytesTransferred())

	frame := make([]byte, tmphm.FrameLen)
	require.NoError(t, r.bus.Read(sim.DefaultSHT3xAddr, frame))
	r.pump(t)
	require.Equal(t, i2cmaster.StatusOK, r.bus.OpStatus())
	assert.Equal(t, tmphm.FrameLen, r.bus.BytesTransferred())
	require.NoError(t, r.bus.Release())

	m, err := tmphm.Decode(frame)
	require.NoError(t, err)
	assert.InDelta(t, 23.5, m.Temperature, 0.01)
	assert.InDelta(t, 45.0, m.Humidity, 0.01)

	assert.True(t, r.ctrl.Idle())
	// One stop per transaction, none repeated by terminal cleanup.
	assert.Equal(t, 2, r.ctrl.Stops())
}

func TestController_NoSlaveNacksAddress(t *testing.T) {
	r := newRig(t, nil)

	require.NoError(t, r.bus.Reserve())
	require.NoError(t, r.bus.Write(0x44, []byte{0x2C, 0x06}))
	r.pump(t)
	assert.Equal(t, i2cmaster.StatusFailed, r.bus.OpStatus())
	assert.Equal(t, i2cmaster.ErrorAckFail, r.bus.LastError())
	assert.True(t, r.ctrl.Idle())
}

func TestController_WrongAddressNacked(t *testing.T) {
	r := newRig(t, sim.NewSHT3x(sim.DefaultSHT3xAddr))

	require.NoError(t, r.bus.Reserve())
	require.NoError(t, r.bus.Write(0x45, []byte{0x2C, 0x06}))
	r.pump(t)
	assert.Equal(t, i2cmaster.ErrorAckFail, r.bus.LastError())
}

func TestController_ReadWithoutCommandNacked(t *testing.T) {
	r := newRig(t, sim.NewSHT3x(sim.DefaultSHT3xAddr))

	require.NoError(t, r.bus.Reserve())
	require.NoError(t, r.bus.Read(sim.DefaultSHT3xAddr, make([]byte, tmphm.FrameLen)))
	r.pump(t)
	assert.Equal(t, i2cmaster.StatusFailed, r.bus.OpStatus())
	assert.Equal(t, i2cmaster.ErrorAckFail, r.bus.LastError())
}

func TestController_InjectedBusError(t *testing.T) {
	r := newRig(t, sim.NewSHT3x(sim.DefaultSHT3xAddr))

	require.NoError(t, r.bus.Reserve())
	require.NoError(t, r.bus.Write(sim.DefaultSHT3xAddr, []byte{0x2C, 0x06}))
	r.ctrl.RaiseError(i2cmaster.FlagBusError)
	r.pump(t)
	assert.Equal(t, i2cmaster.StatusFailed, r.bus.OpStatus())
	assert.Equal(t, i2cmaster.ErrorBusError, r.bus.LastError())

	// The error flag was cleared; the next transaction starts clean.
	require.NoError(t, r.bus.Write(sim.DefaultSHT3xAddr, []byte{0x2C, 0x06}))
	r.pump(t)
	assert.Equal(t, i2cmaster.StatusOK, r.bus.OpStatus())
}

func TestSelfTest_CompletesAgainstSimulator(t *testing.T) {
	slave := sim.NewSHT3x(sim.DefaultSHT3xAddr)
	slave.SetReading(21.0, 50.0)
	r := newRig(t, slave)

	r.bus.StartSelfTest(sim.DefaultSHT3xAddr)
	require.True(t, r.bus.SelfTestActive())
	for i := 0; i < 1000 && r.bus.SelfTestActive(); i++ {
		r.ctrl.Pump()
		require.NoError(t, r.bus.Run())
		r.timers.Run()
	}
	require.False(t, r.bus.SelfTestActive())
	assert.True(t, r.ctrl.Idle())

	// The bus is released again and the probe read back a valid frame.
	require.NoError(t, r.bus.Reserve())
	require.NoError(t, r.bus.Release())
}

func TestSelfTest_FailsWithoutSlave(t *testing.T) {
	r := newRig(t, nil)

	r.bus.StartSelfTest(sim.DefaultSHT3xAddr)
	var failed error
	for i := 0; i < 1000 && r.bus.SelfTestActive(); i++ {
		r.ctrl.Pump()
		if err := r.bus.Run(); err != nil {
			failed = err
		}
		r.timers.Run()
	}
	require.Error(t, failed)
	assert.Contains(t, failed.Error(), "ack")

	// The failure path released the reservation.
	require.NoError(t, r.bus.Reserve())
}

func TestBlockingTransport_RoundTrip(t *testing.T) {
	slave := sim.NewSHT3x(sim.DefaultSHT3xAddr)
	slave.SetReading(19.25, 61.5)
	r := newRig(t, slave)

	trans := i2cmaster.NewBlockingTransport(r.bus, func() {
		r.ctrl.Pump()
		r.timers.Run()
	})
	ctx := context.Background()

	require.NoError(t, trans.WriteToAddr(ctx, sim.DefaultSHT3xAddr, tmphm.MeasureCmd[:]))
	frame := make([]byte, tmphm.FrameLen)
	require.NoError(t, trans.ReadFromAddr(ctx, sim.DefaultSHT3xAddr, frame))

	m, err := tmphm.Decode(frame)
	require.NoError(t, err)
	assert.InDelta(t, 19.25, m.Temperature, 0.01)
	assert.InDelta(t, 61.5, m.Humidity, 0.01)
}

func TestBlockingTransport_BusHeld(t *testing.T) {
	r := newRig(t, sim.NewSHT3x(sim.DefaultSHT3xAddr))
	require.NoError(t, r.bus.Reserve())

	trans := i2cmaster.NewBlockingTransport(r.bus, func() {})
	err := trans.WriteToAddr(context.Background(), sim.DefaultSHT3xAddr, []byte{0x2C})
	assert.ErrorIs(t, err, i2cmaster.ErrBusBusy)
}
