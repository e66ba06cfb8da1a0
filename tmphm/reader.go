package tmphm

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/i2cmaster"
)

// Reader performs one blocking measurement over a synchronous transport. It
// is the hosted counterpart of the Sampler, used by tooling that talks to
// the sensor through a USB bridge or a Linux bus device.
type Reader struct {
	transport i2cmaster.Transport
	cfg       Config
}

func NewReader(transport i2cmaster.Transport, cfg Config) *Reader {
	return &Reader{transport: transport, cfg: cfg}
}

// Measure triggers a measurement, waits out the measurement time and decodes
// the readback.
func (r *Reader) Measure(ctx context.Context) (Measurement, error) {
	if err := r.transport.WriteToAddr(ctx, r.cfg.Addr, MeasureCmd[:]); err != nil {
		return Measurement{}, fmt.Errorf("tmphm: measurement command failed: %w", err)
	}
	select {
	case <-time.After(r.cfg.MeasTime):
	case <-ctx.Done():
		return Measurement{}, ctx.Err()
	}
	buf := make([]byte, FrameLen)
	if err := r.transport.ReadFromAddr(ctx, r.cfg.Addr, buf); err != nil {
		return Measurement{}, fmt.Errorf("tmphm: measurement readback failed: %w", err)
	}
	return Decode(buf)
}
