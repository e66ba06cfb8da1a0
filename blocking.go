package i2cmaster

import (
	"context"
	"fmt"
)

// BlockingTransport adapts an asynchronous Bus to the Transport interface by
// polling each transaction to a terminal status. Between polls it invokes the
// caller-supplied pump, which must advance whatever drives the engine: the
// controller binding first, then the timer service. It is meant for hosted
// tools and tests, not for the no-RTOS super loop the engine targets.
type BlockingTransport struct {
	bus  *Bus
	pump func()
}

func NewBlockingTransport(bus *Bus, pump func()) *BlockingTransport {
	return &BlockingTransport{bus: bus, pump: pump}
}

func (t *BlockingTransport) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return t.transact(ctx, address, buffer, t.bus.Write)
}

func (t *BlockingTransport) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return t.transact(ctx, address, buffer, t.bus.Read)
}

func (t *BlockingTransport) transact(ctx context.Context, address byte, buffer []byte, start func(byte, []byte) error) error {
	if err := t.bus.Reserve(); err != nil {
		return ErrBusBusy
	}
	defer func() { _ = t.bus.Release() }()

	if err := start(address, buffer); err != nil {
		return err
	}
	for t.bus.OpStatus() == StatusInProgress {
		if err := ctx.Err(); err != nil {
			// The guard timer will abort the in-flight transaction; the
			// caller only loses this result.
			return err
		}
		t.pump()
	}
	if t.bus.OpStatus() == StatusFailed {
		return fmt.Errorf("transaction to %#x failed: %s", address, t.bus.LastError())
	}
	return nil
}
