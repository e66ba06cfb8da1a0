package i2cmaster

import "fmt"

// Self-test probe sequence, matching what the sampling module does every
// cycle: the high-repeatability measurement command followed by a six byte
// readback (two measurement words, each with its CRC).
var selfTestCmd = [2]byte{0x2C, 0x06}

const selfTestReadLen = 6

type selfTestPhase uint8

const (
	phaseReserve selfTestPhase = iota
	phaseWrite
	phaseAwaitWrite
	phaseRead
	phaseAwaitRead
	phaseRelease
	phaseDone
)

// SelfTest exercises the full transaction surface of a Bus against a live
// slave: reserve, command write, poll, readback, poll, release. It is a
// cooperative state machine advanced by Step from the super loop; Bus.Run
// pumps an attached instance.
type SelfTest struct {
	bus   *Bus
	addr  byte
	phase selfTestPhase
	buf   [selfTestReadLen]byte
}

// NewSelfTest prepares a self test against the slave at addr.
func NewSelfTest(bus *Bus, addr byte) *SelfTest {
	return &SelfTest{bus: bus, addr: addr}
}

// Step advances the sequence by at most one operation. It reports done=true
// once the full sequence completed; a non-nil error aborts the test and
// leaves the bus released.
func (t *SelfTest) Step() (done bool, err error) {
	switch t.phase {
	case phaseReserve:
		if err := t.bus.Reserve(); err != nil {
			return false, fmt.Errorf("self test: reserve failed: %w", err)
		}
		t.phase = phaseWrite

	case phaseWrite:
		if err := t.bus.Write(t.addr, selfTestCmd[:]); err != nil {
			t.abort()
			return false, fmt.Errorf("self test: write failed: %w", err)
		}
		t.phase = phaseAwaitWrite

	case phaseAwaitWrite:
		switch t.bus.OpStatus() {
		case StatusInProgress:
		case StatusFailed:
			t.abort()
			return false, fmt.Errorf("self test: write failed: %s", t.bus.LastError())
		default:
			t.phase = phaseRead
		}

	case phaseRead:
		if err := t.bus.Read(t.addr, t.buf[:]); err != nil {
			t.abort()
			return false, fmt.Errorf("self test: read failed: %w", err)
		}
		t.phase = phaseAwaitRead

	case phaseAwaitRead:
		switch t.bus.OpStatus() {
		case StatusInProgress:
		case StatusFailed:
			t.abort()
			return false, fmt.Errorf("self test: read failed: %s", t.bus.LastError())
		default:
			t.phase = phaseRelease
		}

	case phaseRelease:
		if err := t.bus.Release(); err != nil {
			return false, fmt.Errorf("self test: release failed: %w", err)
		}
		t.phase = phaseDone
		return true, nil

	case phaseDone:
		return true, nil
	}
	return false, nil
}

// Data returns the bytes read back by the last completed test.
func (t *SelfTest) Data() []byte {
	return t.buf[:]
}

func (t *SelfTest) abort() {
	_ = t.bus.Release()
	t.phase = phaseDone
}

// StartSelfTest attaches a self test against addr to the bus; Run advances it.
func (b *Bus) StartSelfTest(addr byte) {
	b.selftest = NewSelfTest(b, addr)
}

// SelfTestActive reports whether a self test is attached and still running.
func (b *Bus) SelfTestActive() bool {
	return b.selftest != nil
}

// Run is the engine's periodic pump. It only advances an attached self test;
// regular transactions progress purely on interrupts and need no polling
// here. A failed self test is detached and its error returned once.
func (b *Bus) Run() error {
	if b.selftest == nil {
		return nil
	}
	done, err := b.selftest.Step()
	if err != nil {
		b.selftest = nil
		return err
	}
	if done {
		b.selftest = nil
	}
	return nil
}
