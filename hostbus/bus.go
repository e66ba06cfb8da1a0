// Package hostbus exposes the host's native I2C buses (Linux /dev/i2c-*,
// sysfs) as synchronous transports through periph.io.
package hostbus

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Bus is an i2cmaster.Transport over a periph.io bus handle.
type Bus struct {
	bus i2c.BusCloser
}

// Open initializes the host drivers and opens the named bus ("" picks the
// first available one).
func Open(dev string) (*Bus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &Bus{bus: bus}, nil
}

func (b *Bus) WriteToAddr(_ context.Context, address byte, buffer []byte) error {
	if err := b.bus.Tx(uint16(address), buffer, nil); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *Bus) ReadFromAddr(_ context.Context, address byte, buffer []byte) error {
	if err := b.bus.Tx(uint16(address), nil, buffer); err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *Bus) Close() error {
	return b.bus.Close()
}
