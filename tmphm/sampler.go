package tmphm

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/i2cmaster"
	"github.com/mklimuk/i2cmaster/timer"
)

// Bus is the transaction surface the sampler needs; *i2cmaster.Bus satisfies
// it.
type Bus interface {
	Reserve() error
	Release() error
	Write(addr byte, buf []byte) error
	Read(addr byte, buf []byte) error
	OpStatus() i2cmaster.OpStatus
	LastError() i2cmaster.ErrorKind
}

// Config carries the sampler tunables.
type Config struct {
	// Addr is the 7-bit sensor address.
	Addr byte `yaml:"addr"`
	// SamplePeriod is the time between measurement cycles.
	SamplePeriod time.Duration `yaml:"sample_period"`
	// MeasTime is how long the sensor needs to complete a measurement after
	// the command write.
	MeasTime time.Duration `yaml:"meas_time"`
}

// DefaultConfig returns the values used on the reference system: the
// factory-default address sampled once per second, with the datasheet's
// high-repeatability measurement time.
func DefaultConfig() Config {
	return Config{
		Addr:         0x44,
		SamplePeriod: time.Second,
		MeasTime:     15 * time.Millisecond,
	}
}

// ErrNoMeasurement is returned by LastMeasurement before the first
// successful cycle.
var ErrNoMeasurement = fmt.Errorf("tmphm: no measurement available yet")

type phase uint8

const (
	phaseIdle phase = iota
	phaseReserve
	phaseWriteCmd
	phaseWaitMeas
	phaseReadValue
)

// Sampler runs the periodic measurement cycle as a cooperative state machine
// pumped from the super loop. A periodic timer kicks each cycle; every bus
// interaction goes through the non-blocking engine surface and is polled on
// subsequent Run calls.
type Sampler struct {
	cfg    Config
	bus    Bus
	timers *timer.Service
	tick   *timer.Timer
	log    *slog.Logger

	state     phase
	buf       [FrameLen]byte
	waitSince time.Time

	last   Measurement
	lastAt time.Time
	got    bool
}

func NewSampler(bus Bus, timers *timer.Service, cfg Config) *Sampler {
	return &Sampler{
		cfg:    cfg,
		bus:    bus,
		timers: timers,
		log:    slog.Default().With("module", "tmphm"),
	}
}

// Start arms the periodic sampling timer.
func (s *Sampler) Start() error {
	if s.tick != nil {
		return nil
	}
	s.tick = s.timers.NewTimer(s.onTick)
	s.tick.StartPeriodic(s.cfg.SamplePeriod)
	return nil
}

func (s *Sampler) onTick() {
	if s.state != phaseIdle {
		// The cycle takes ~20ms against a 1s period; hitting this means the
		// bus stalled longer than the guard time.
		s.log.Error("sampling timer overrun, previous cycle still running", "state", s.state)
		return
	}
	s.state = phaseReserve
}

// Run advances the measurement cycle by at most one step. Call it once per
// main-loop iteration.
func (s *Sampler) Run() {
	switch s.state {
	case phaseIdle:
		// Waiting for the timer to kick the next cycle.

	case phaseReserve:
		if err := s.bus.Reserve(); err != nil {
			// Another module holds the bus; retry next iteration.
			return
		}
		if err := s.bus.Write(s.cfg.Addr, MeasureCmd[:]); err != nil {
			s.log.Error("measurement command rejected", "error", err)
			s.abort()
			return
		}
		s.state = phaseWriteCmd

	case phaseWriteCmd:
		switch s.bus.OpStatus() {
		case i2cmaster.StatusInProgress:
		case i2cmaster.StatusFailed:
			s.log.Error("measurement command failed", "error", s.bus.LastError())
			s.abort()
		default:
			s.waitSince = s.timers.Now()
			s.state = phaseWaitMeas
		}

	case phaseWaitMeas:
		if s.timers.Now().Sub(s.waitSince) < s.cfg.MeasTime {
			return
		}
		if err := s.bus.Read(s.cfg.Addr, s.buf[:]); err != nil {
			s.log.Error("measurement readback rejected", "error", err)
			s.abort()
			return
		}
		s.state = phaseReadValue

	case phaseReadValue:
		switch s.bus.OpStatus() {
		case i2cmaster.StatusInProgress:
			return
		case i2cmaster.StatusFailed:
			s.log.Error("measurement readback failed", "error", s.bus.LastError())
		default:
			if meas, err := Decode(s.buf[:]); err != nil {
				s.log.Error("discarding measurement", "error", err)
			} else {
				s.last = meas
				s.lastAt = s.timers.Now()
				s.got = true
				s.log.Debug("measurement", "temperature", meas.Temperature, "humidity", meas.Humidity)
			}
		}
		s.abort()
	}
}

// LastMeasurement returns the most recent decoded measurement and its age.
func (s *Sampler) LastMeasurement() (Measurement, time.Duration, error) {
	if !s.got {
		return Measurement{}, 0, ErrNoMeasurement
	}
	return s.last, s.timers.Now().Sub(s.lastAt), nil
}

// abort releases the bus and returns to idle, cycle over.
func (s *Sampler) abort() {
	_ = s.bus.Release()
	s.state = phaseIdle
}
