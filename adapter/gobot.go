package adapter

import (
	"context"
	"fmt"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
)

// GobotBus exposes any gobot I2C connector (Raspberry Pi, NanoPi, Tinker
// Board adaptors and friends) as an i2cmaster.Transport. Connections are
// per-address on the gobot side, so they are opened lazily and cached.
type GobotBus struct {
	connector gi2c.Connector
	busNr     int
	conns     map[byte]gi2c.Connection
}

func NewGobotBus(connector gi2c.Connector, busNr int) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     make(map[byte]gi2c.Connection),
	}
}

func (g *GobotBus) WriteToAddr(_ context.Context, address byte, buffer []byte) error {
	conn, err := g.connection(address)
	if err != nil {
		return err
	}
	if _, err := conn.Write(buffer); err != nil {
		return fmt.Errorf("could not write to %#x on bus %d: %w", address, g.busNr, err)
	}
	return nil
}

func (g *GobotBus) ReadFromAddr(_ context.Context, address byte, buffer []byte) error {
	conn, err := g.connection(address)
	if err != nil {
		return err
	}
	if _, err := conn.Read(buffer); err != nil {
		return fmt.Errorf("could not read from %#x on bus %d: %w", address, g.busNr, err)
	}
	return nil
}

// Close tears down all cached connections.
func (g *GobotBus) Close() error {
	var firstErr error
	for addr, conn := range g.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not close connection to %#x: %w", addr, err)
		}
		delete(g.conns, addr)
	}
	return firstErr
}

func (g *GobotBus) connection(address byte) (gi2c.Connection, error) {
	if conn, ok := g.conns[address]; ok {
		return conn, nil
	}
	conn, err := g.connector.GetI2cConnection(int(address), g.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %#x on bus %d: %w", address, g.busNr, err)
	}
	g.conns[address] = conn
	return conn, nil
}
