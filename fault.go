package i2cmaster

import "time"

// FaultInjector lets debug builds steer transactions into error paths without
// touching the engine. The default injector passes everything through; the
// debug CLI installs a Faults value and toggles it at runtime.
type FaultInjector interface {
	// Address may rewrite the destination address of a starting transaction.
	Address(addr byte) byte
	// GuardTime may shorten the guard time of a starting transaction.
	GuardTime(d time.Duration) time.Duration
	// ForceAckFail makes the next classified error an ack failure.
	ForceAckFail() bool
}

type nopInjector struct{}

func (nopInjector) Address(addr byte) byte                  { return addr }
func (nopInjector) GuardTime(d time.Duration) time.Duration { return d }
func (nopInjector) ForceAckFail() bool                      { return false }

// Faults is a toggleable FaultInjector covering the three classic failure
// scenarios: addressing a device that is not there, a slave that never acks,
// and a transaction that outlives its guard time.
type Faults struct {
	// WrongAddress redirects every transaction to BadAddress.
	WrongAddress bool
	// BadAddress is the address used when WrongAddress is set.
	BadAddress byte
	// ForceNack classifies any error interrupt as an ack failure.
	ForceNack bool
	// ShortGuard arms the guard timer with ShortGuardTime instead of the
	// configured guard time, forcing a timeout before completion.
	ShortGuard bool
	// ShortGuardTime defaults to 1ms when left zero.
	ShortGuardTime time.Duration
}

func (f *Faults) Address(addr byte) byte {
	if f.WrongAddress {
		return f.BadAddress
	}
	return addr
}

func (f *Faults) GuardTime(d time.Duration) time.Duration {
	if !f.ShortGuard {
		return d
	}
	if f.ShortGuardTime > 0 {
		return f.ShortGuardTime
	}
	return time.Millisecond
}

func (f *Faults) ForceAckFail() bool {
	return f.ForceNack
}
