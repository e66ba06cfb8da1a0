// Package sim provides a simulated two-wire controller and slave devices for
// hosted runs and tests. The controller implements the engine's Port surface
// and turns hardware interrupts into callbacks delivered from the super loop:
// each Pump delivers at most one pending interrupt, errors before events, so
// a loop that pumps the controller before the timer service resolves the
// error-versus-guard-timeout race deterministically.
package sim

import (
	"github.com/mklimuk/i2cmaster"
)

// Slave models one device on the simulated bus.
type Slave interface {
	// Ack reports whether the device acknowledges being addressed.
	Ack(addr byte, read bool) bool
	// WriteByte delivers one byte written by the master and reports the ack.
	WriteByte(b byte) bool
	// ReadByte produces the next byte shifted out towards the master.
	ReadByte() byte
	// Stop signals the end of the transaction.
	Stop()
}

// Controller is a behavioral model of the bus peripheral. A nil slave leaves
// every address unacknowledged, which exercises the ack-failure path.
type Controller struct {
	slave Slave
	sink  i2cmaster.InterruptSink

	active    bool
	irqOn     bool
	started   bool
	addressed bool
	readMode  bool
	ack       i2cmaster.AckMode

	status  i2cmaster.StatusFlags
	dataReg byte
	pendEvt bool
	pendErr bool

	stops int
}

func NewController(slave Slave) *Controller {
	return &Controller{slave: slave}
}

// Bind attaches the interrupt sink the controller delivers to.
func (c *Controller) Bind(sink i2cmaster.InterruptSink) {
	c.sink = sink
}

// Pump delivers at most one pending interrupt to the bound sink. It is a
// no-op while interrupts are masked. Call it once per loop iteration.
func (c *Controller) Pump() {
	if !c.irqOn || c.sink == nil {
		return
	}
	if c.pendErr {
		c.pendErr = false
		c.sink.OnError()
		return
	}
	if c.pendEvt {
		c.pendEvt = false
		c.sink.OnEvent()
	}
}

// Stops counts issued stop conditions, for tests asserting that terminal
// cleanup does not repeat observably.
func (c *Controller) Stops() int {
	return c.stops
}

// Idle reports whether the simulated wire is released.
func (c *Controller) Idle() bool {
	return !c.started
}

func (c *Controller) Activate()   { c.active = true }
func (c *Controller) Deactivate() { c.active = false }

func (c *Controller) EnableInterrupts()  { c.irqOn = true }
func (c *Controller) DisableInterrupts() { c.irqOn = false }

func (c *Controller) GenerateStart() {
	if !c.active {
		return
	}
	c.started = true
	c.addressed = false
	// Transient protocol flags from the previous transaction are gone once a
	// new start is generated; error flags persist until cleared.
	c.status &= i2cmaster.ErrorFlags
	c.status |= i2cmaster.FlagStartSent
	c.pendEvt = true
}

func (c *Controller) GenerateStop() {
	if !c.started {
		return
	}
	c.started = false
	c.addressed = false
	c.stops++
	if c.slave != nil {
		c.slave.Stop()
	}
}

func (c *Controller) SetAckMode(mode i2cmaster.AckMode) {
	c.ack = mode
}

func (c *Controller) WriteData(b byte) {
	c.status &^= i2cmaster.FlagStartSent
	if !c.addressed {
		read := b&1 == 1
		if c.slave == nil || !c.slave.Ack(b>>1, read) {
			c.status |= i2cmaster.FlagAckFail
			c.pendErr = true
			return
		}
		c.addressed = true
		c.readMode = read
		c.status |= i2cmaster.FlagAddrAcked
		c.pendEvt = true
		return
	}
	if c.slave.WriteByte(b) {
		c.status |= i2cmaster.FlagTxEmpty | i2cmaster.FlagTransferDone
		c.pendEvt = true
		return
	}
	c.status |= i2cmaster.FlagAckFail
	c.pendErr = true
}

func (c *Controller) ReadData() byte {
	b := c.dataReg
	c.status &^= i2cmaster.FlagRxReady
	// Shifting of the next byte continues only while the master keeps
	// acknowledging.
	if c.started && c.readMode && c.ack == i2cmaster.Ack {
		c.shiftIn()
	}
	return b
}

func (c *Controller) ReadStatus() i2cmaster.StatusFlags {
	return c.status
}

func (c *Controller) ClearAddrAck() {
	c.status &^= i2cmaster.FlagAddrAcked
	if c.readMode {
		c.shiftIn()
	}
}

func (c *Controller) ClearErrors(flags i2cmaster.StatusFlags) {
	c.status &^= flags
}

// RaiseError injects an error condition as the hardware would, for tests and
// fault drills.
func (c *Controller) RaiseError(flags i2cmaster.StatusFlags) {
	c.status |= flags
	c.pendErr = true
}

func (c *Controller) shiftIn() {
	if c.slave == nil {
		return
	}
	c.dataReg = c.slave.ReadByte()
	c.status |= i2cmaster.FlagRxReady
	c.pendEvt = true
}
