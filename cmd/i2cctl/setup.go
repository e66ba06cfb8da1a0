package main

import (
	"context"
	"fmt"
	"math/rand"

	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/i2cmaster"
	"github.com/mklimuk/i2cmaster/adapter"
	"github.com/mklimuk/i2cmaster/hostbus"
	"github.com/mklimuk/i2cmaster/sim"
	"github.com/mklimuk/i2cmaster/timer"
	"github.com/mklimuk/i2cmaster/tmphm"
)

// simRig is a complete hosted engine instance: the bus, its simulated
// controller with a sensor slave, the timer service and the toggleable fault
// set. Pump advances everything one loop iteration, interrupt sources before
// timers.
type simRig struct {
	bus    *i2cmaster.Bus
	ctrl   *sim.Controller
	slave  *sim.SHT3x
	timers *timer.Service
	faults *i2cmaster.Faults
}

func newSimRig(cfg config) *simRig {
	slave := sim.NewSHT3x(cfg.sensor.Addr)
	ctrl := sim.NewController(slave)
	timers := timer.New()
	faults := &i2cmaster.Faults{BadAddress: cfg.sensor.Addr ^ 0x01}
	bus := i2cmaster.New(ctrl, timers, cfg.bus, i2cmaster.WithFaultInjector(faults))
	ctrl.Bind(bus)
	_ = bus.Start()
	return &simRig{bus: bus, ctrl: ctrl, slave: slave, timers: timers, faults: faults}
}

func (r *simRig) Pump() {
	r.ctrl.Pump()
	r.timers.Run()
}

// Transport exposes the rig through the synchronous transport surface.
func (r *simRig) Transport() i2cmaster.Transport {
	return i2cmaster.NewBlockingTransport(r.bus, r.Pump)
}

// newTransport builds the selected synchronous transport. The sim adapter
// runs the full asynchronous engine against the simulated sensor; the others
// talk to real hardware.
func newTransport(cfg config) (i2cmaster.Transport, func(), error) {
	switch cfg.adapter {
	case "sim":
		return newSimRig(cfg).Transport(), func() {}, nil
	case "mcp2221":
		return adapter.NewMCP2221(), func() {}, nil
	case "host":
		bus, err := hostbus.Open(cfg.device)
		if err != nil {
			return nil, nil, fmt.Errorf("host bus initialization error: %w", err)
		}
		return bus, func() { _ = bus.Close() }, nil
	case "nanopi":
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := adapter.NewGobotBus(npi, cfg.gobotBus)
		return bus, func() {
			_ = bus.Close()
			_ = npi.I2cBusAdaptor.Finalize()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter %q", cfg.adapter)
}

// newSource builds the measurement source for one-shot and polled commands.
// The mock source needs no hardware at all and serves jittered room values.
func newSource(cfg config) (tmphm.Source, func(), error) {
	if cfg.adapter == "mock" {
		return tmphm.NewMock(func(context.Context) (tmphm.Measurement, error) {
			return tmphm.Measurement{
				Temperature: 21.0 + 3.0*rand.Float32(),
				Humidity:    40.0 + 10.0*rand.Float32(),
			}, nil
		}), func() {}, nil
	}
	transport, cleanup, err := newTransport(cfg)
	if err != nil {
		return nil, nil, err
	}
	return tmphm.NewReader(transport, cfg.sensor), cleanup, nil
}
