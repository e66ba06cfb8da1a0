package i2cmaster

import "context"

// Transport performs complete transactions against an addressed slave. It is
// the synchronous counterpart of the Bus engine, implemented by hosted
// adapters (USB bridges, Linux bus devices) and by BlockingTransport on top
// of the engine itself.
type Transport interface {
	// WriteToAddr writes buffer to the 7-bit address and returns once the
	// transaction terminated.
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	// ReadFromAddr fills buffer from the 7-bit address and returns once the
	// transaction terminated.
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}
