// Package adapter contains synchronous transport implementations backed by
// hosted hardware bridges.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/i2cmaster"
)

// MCP2221 USB identifiers.
const VendorID = 0x04D8
const ProductID = 0x00DD

var ErrDeviceNotFound = errors.New("MCP2221 device not found")
var ErrCommandFailed = errors.New("command failed")

// MCP2221 drives the I2C engine of a Microchip MCP2221/MCP2221A USB bridge
// over 64-byte HID reports. It implements i2cmaster.Transport; the bridge's
// own engine handles start/stop conditions and acking, so transactions are
// whole-message and blocking.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
}

// EngineStatus is the I2C-related part of the bridge status report.
type EngineStatus struct {
	RequestedSize   uint16 `yaml:"requested_size"`
	TransferredSize uint16 `yaml:"transferred_size"`
	BufferCounter   int    `yaml:"buffer_counter"`
	SpeedDivider    int    `yaml:"speed_divider"`
	Timeout         int    `yaml:"timeout"`
	CurrentAddress  string `yaml:"current_address"`
	ReadPending     int    `yaml:"read_pending"`
}

func NewMCP2221() *MCP2221 {
	return &MCP2221{
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
	}
}

// WriteToAddr issues an I2C write through the bridge engine (command 0x90).
func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x90
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	if len(buffer) > 0 {
		copy(d.request[4:], buffer)
	}
	if err := d.send(ctx, true); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return i2cmaster.ErrBusBusy
	}
	return nil
}

// ReadFromAddr requests an I2C read (command 0x91) and collects the data
// from the bridge buffer (command 0x40).
func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x91
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx, true); err != nil {
		return fmt.Errorf("bus read from %#x failed: %w", address, err)
	}
	d.request[0] = 0x40
	resetBuffer(d.response)
	if err := d.send(ctx, true); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

// Status queries the bridge engine state (command 0x10).
func (d *MCP2221) Status(ctx context.Context) (*EngineStatus, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x10
	if err := d.send(ctx, true); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// Cancel aborts the current bridge transfer and releases the bus, the
// bridge-level equivalent of a forced stop condition.
func (d *MCP2221) Cancel(ctx context.Context) (*EngineStatus, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x10
	d.request[2] = 0x10
	if err := d.send(ctx, true); err != nil {
		return nil, fmt.Errorf("cancel request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *EngineStatus {
	// Offsets per datasheet section 3.1.1: bytes 9-12 carry the requested
	// and transferred 16-bit counters, 13-15 the engine internals, 16-17
	// the address in use, 25 the pending read counter.
	return &EngineStatus{
		RequestedSize:   binary.LittleEndian.Uint16(buffer[9:11]),
		TransferredSize: binary.LittleEndian.Uint16(buffer[11:13]),
		BufferCounter:   int(buffer[13]),
		SpeedDivider:    int(buffer[14]),
		Timeout:         int(buffer[15]),
		CurrentAddress:  hex.EncodeToString(buffer[16:18]),
		ReadPending:     int(buffer[25]),
	}
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return ErrDeviceNotFound
	}
	if len(devs) > 1 {
		return fmt.Errorf("ambiguous device identification")
	}
	dev, err := devs[0].Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() { _ = dev.Close() }()

	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	select {
	case <-time.After(d.responseWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
