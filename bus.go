// Package i2cmaster implements an asynchronous, interrupt-driven master
// transaction engine for a two-wire serial bus. The engine never blocks:
// callers reserve the bus, start a write or read, and poll for the outcome
// from their own state machine while interrupts delivered by a controller
// binding advance the transaction. A guard timer force-aborts transactions
// that stop making progress.
package i2cmaster

import (
	"time"

	"github.com/mklimuk/i2cmaster/timer"
)

// State is the protocol position of the engine. The set is closed; every
// transition is driven by exactly one hardware interrupt.
type State uint8

const (
	StateIdle State = iota
	StateWriteStart
	StateWriteAddress
	StateWriteData
	StateReadStart
	StateReadAddress
	StateReadData
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriteStart:
		return "write/start"
	case StateWriteAddress:
		return "write/address"
	case StateWriteData:
		return "write/data"
	case StateReadStart:
		return "read/start"
	case StateReadAddress:
		return "read/address"
	case StateReadData:
		return "read/data"
	}
	return "unknown"
}

// Config carries the engine tunables.
type Config struct {
	// GuardTime bounds the lifetime of a single transaction. A transaction
	// still running when it elapses is aborted with ErrorGuardTimeout.
	// Zero disables the guard timer entirely.
	GuardTime time.Duration `yaml:"guard_time"`
}

// DefaultConfig returns the configuration used on the reference system.
func DefaultConfig() Config {
	return Config{GuardTime: 100 * time.Millisecond}
}

// Bus is one two-wire master peripheral and its transaction state. A Bus is
// created once at system initialization and then cycles between idle and an
// active transaction; it is never torn down during normal operation.
//
// Three contexts touch a Bus: the super loop (Reserve/Write/Read/OpStatus/
// Release), the interrupt handlers (OnEvent/OnError) and the guard-timer
// callback. On the single-core, run-to-completion model the engine targets
// no locking is needed between them; the only ordering hazard, an error
// interrupt racing the guard timer for the same transaction, is resolved by
// first-error-wins plus the idle check guarding both cleanup paths.
type Bus struct {
	cfg    Config
	port   Port
	timers *timer.Service
	guard  *timer.Timer
	fault  FaultInjector

	reserved bool
	state    State
	lastErr  ErrorKind

	// Transaction fields, only meaningful while state != StateIdle. The
	// buffer is borrowed from the caller for the transaction's duration and
	// never copied.
	addr byte
	buf  []byte
	done int

	selftest *SelfTest
}

type Option func(*Bus)

// WithFaultInjector installs a fault-injection strategy. The engine consults
// it when a transaction starts and when an error is classified.
func WithFaultInjector(f FaultInjector) Option {
	return func(b *Bus) {
		b.fault = f
	}
}

// New creates an idle bus engine on top of the given port binding. Start
// must be called before any operation is accepted.
func New(port Port, timers *timer.Service, cfg Config, opts ...Option) *Bus {
	b := &Bus{
		cfg:    cfg,
		port:   port,
		timers: timers,
		fault:  nopInjector{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start acquires the guard timer and begins accepting operations. It leaves
// the peripheral powered down with both interrupt sources masked.
func (b *Bus) Start() error {
	if b.guard != nil {
		return nil
	}
	b.guard = b.timers.NewTimer(b.onGuardTimeout)
	b.port.DisableInterrupts()
	b.port.Deactivate()
	return nil
}

// Reserve claims exclusive ownership of the bus. It touches no hardware and
// fails with ErrAlreadyReserved if another caller holds the reservation.
func (b *Bus) Reserve() error {
	if b.reserved {
		return ErrAlreadyReserved
	}
	b.reserved = true
	return nil
}

// Release clears the reservation. The gate does not check for an active
// transaction: callers are expected to release only after observing a
// terminal status, but error-path cleanup may release unconditionally.
func (b *Bus) Release() error {
	if !b.reserved {
		return ErrNotReserved
	}
	b.reserved = false
	return nil
}

// Write starts an asynchronous write of buf to the 7-bit address addr. It
// returns as soon as the start condition is requested; poll OpStatus for the
// outcome. The buffer is borrowed until the transaction terminates. A
// zero-length write addresses the slave and stops without sending data.
func (b *Bus) Write(addr byte, buf []byte) error {
	return b.startOp(StateWriteStart, addr, buf)
}

// Read starts an asynchronous read of len(buf) bytes from the 7-bit address
// addr. It returns as soon as the start condition is requested; poll OpStatus
// for the outcome. The buffer is borrowed until the transaction terminates.
func (b *Bus) Read(addr byte, buf []byte) error {
	if len(buf) == 0 {
		return ErrInvalidArgument
	}
	return b.startOp(StateReadStart, addr, buf)
}

func (b *Bus) startOp(initial State, addr byte, buf []byte) error {
	if b.guard == nil {
		return ErrNotStarted
	}
	if !b.reserved {
		return ErrNotReserved
	}
	if b.state != StateIdle {
		return ErrBusy
	}

	b.addr = b.fault.Address(addr)
	b.buf = buf
	b.done = 0
	b.lastErr = ErrorNone
	b.state = initial

	b.port.Activate()
	b.port.GenerateStart()
	b.port.EnableInterrupts()
	b.guard.Start(b.fault.GuardTime(b.cfg.GuardTime))
	return nil
}

// OpStatus reports where the current or most recent transaction stands
// without blocking.
func (b *Bus) OpStatus() OpStatus {
	if b.state != StateIdle {
		return StatusInProgress
	}
	if b.lastErr != ErrorNone {
		return StatusFailed
	}
	return StatusOK
}

// LastError returns the sticky classified error of the most recently
// completed transaction, ErrorNone after a success.
func (b *Bus) LastError() ErrorKind {
	return b.lastErr
}

// State returns the current protocol state.
func (b *Bus) State() State {
	return b.state
}

// BytesTransferred reports how many payload bytes moved in the current or
// most recent transaction.
func (b *Bus) BytesTransferred() int {
	return b.done
}

// OpStatus is the polling result consumed by caller state machines.
type OpStatus uint8

const (
	StatusOK OpStatus = iota
	StatusInProgress
	StatusFailed
)

func (s OpStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInProgress:
		return "in progress"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// OnEvent advances the state machine by one hardware event interrupt. An
// event whose status does not carry the flag expected in the current state is
// ignored, which tolerates spurious or duplicated deliveries.
func (b *Bus) OnEvent() {
	sr := b.port.ReadStatus()

	switch b.state {
	case StateWriteStart:
		if sr&FlagStartSent != 0 {
			b.port.WriteData(b.addr << 1)
			b.state = StateWriteAddress
		}

	case StateWriteAddress:
		if sr&FlagAddrAcked != 0 {
			b.port.ClearAddrAck()
			if len(b.buf) == 0 {
				b.port.GenerateStop()
				b.finish()
				return
			}
			b.state = StateWriteData
			b.port.WriteData(b.buf[b.done])
			b.done++
		}

	case StateWriteData:
		if sr&(FlagTxEmpty|FlagTransferDone) != 0 {
			if b.done < len(b.buf) {
				b.port.WriteData(b.buf[b.done])
				b.done++
			} else if sr&FlagTransferDone != 0 {
				b.port.GenerateStop()
				b.finish()
			}
		}

	case StateReadStart:
		if sr&FlagStartSent != 0 {
			b.port.WriteData(b.addr<<1 | 1)
			b.state = StateReadAddress
		}

	case StateReadAddress:
		if sr&FlagAddrAcked != 0 {
			if len(b.buf) == 1 {
				b.port.SetAckMode(Nack)
			} else {
				b.port.SetAckMode(Ack)
			}
			b.port.ClearAddrAck()
			// Single byte: the stop request must be armed before the only
			// byte arrives.
			if len(b.buf) == 1 {
				b.port.GenerateStop()
			}
			b.state = StateReadData
		}

	case StateReadData:
		if sr&FlagRxReady != 0 {
			b.buf[b.done] = b.port.ReadData()
			b.done++
			if b.done >= len(b.buf) {
				if len(b.buf) > 1 {
					b.port.GenerateStop()
				}
				b.finish()
			} else if b.done == len(b.buf)-1 {
				// Next byte is the last one: nack it and stop after it.
				b.port.SetAckMode(Nack)
				b.port.GenerateStop()
			}
		}
	}
}

// OnError classifies a hardware error interrupt and aborts the transaction.
// Classification follows a fixed priority so a cascade of flags raised by one
// failure does not mask the root cause. Once the engine is idle any further
// error delivery is a no-op.
func (b *Bus) OnError() {
	if b.state == StateIdle {
		return
	}
	sr := b.port.ReadStatus()

	var kind ErrorKind
	switch {
	case b.fault.ForceAckFail():
		kind = ErrorAckFail
	case sr&FlagAckFail != 0:
		kind = ErrorAckFail
	case sr&FlagBusError != 0:
		kind = ErrorBusError
	case sr&FlagProtoTimeout != 0:
		kind = ErrorProtocolTimeout
	case sr&FlagPECError != 0:
		kind = ErrorPEC
	default:
		kind = ErrorUnexpectedInterrupt
	}
	b.port.ClearErrors(sr & ErrorFlags)
	b.fail(kind)
}

// onGuardTimeout fires from the timer service pump when a transaction
// outlived its guard time. A transaction that already terminated is left
// alone.
func (b *Bus) onGuardTimeout() {
	if b.state == StateIdle {
		return
	}
	b.fail(ErrorGuardTimeout)
}

// finish is the successful terminal transition.
func (b *Bus) finish() {
	b.port.DisableInterrupts()
	b.guard.Stop()
	b.port.Deactivate()
	b.state = StateIdle
	b.lastErr = ErrorNone
}

// fail is the terminal transition for every failure path. The stop condition
// is forced unconditionally so the bus is released even if one was already
// issued; the first recorded error is kept.
func (b *Bus) fail(kind ErrorKind) {
	b.port.DisableInterrupts()
	b.port.GenerateStop()
	b.guard.Stop()
	b.port.Deactivate()
	if b.lastErr == ErrorNone {
		b.lastErr = kind
	}
	b.state = StateIdle
}
