package i2cmaster

// StatusFlags mirrors the peripheral status register. Reading the register
// through Port.ReadStatus acknowledges transient conditions the same way the
// hardware does; individual flags below name the conditions the state machine
// reacts to rather than any particular vendor bit layout.
type StatusFlags uint16

const (
	// FlagStartSent is raised once the start condition has been put on the wire.
	FlagStartSent StatusFlags = 1 << iota
	// FlagAddrAcked is raised when the slave acknowledged the address byte.
	// It stays set until cleared through Port.ClearAddrAck.
	FlagAddrAcked
	// FlagTxEmpty signals the data register can take the next outgoing byte.
	FlagTxEmpty
	// FlagTransferDone signals the last byte (and its ack bit) left the wire.
	FlagTransferDone
	// FlagRxReady signals a received byte is waiting in the data register.
	FlagRxReady

	// Error conditions, delivered through the error interrupt line.
	FlagAckFail
	FlagBusError
	FlagProtoTimeout
	FlagPECError
	FlagOverrun
	FlagArbitrationLost
)

// ErrorFlags covers every condition classified by the error path.
const ErrorFlags = FlagAckFail | FlagBusError | FlagProtoTimeout |
	FlagPECError | FlagOverrun | FlagArbitrationLost

// AckMode selects the master's acknowledge behavior for the next received byte.
type AckMode uint8

const (
	Ack AckMode = iota
	Nack
)

// Port is the capability surface the engine needs from a two-wire master
// peripheral. Implementations are bindings: sim.Controller for hosted runs
// and tests, or a memory-mapped register block on a bare-metal target.
// None of the methods may block.
type Port interface {
	// Activate powers the peripheral up for a transaction; Deactivate shuts
	// it down once the transaction reached a terminal state.
	Activate()
	Deactivate()

	// EnableInterrupts unmasks the event and error interrupt sources;
	// DisableInterrupts masks both.
	EnableInterrupts()
	DisableInterrupts()

	// GenerateStart requests a start condition, GenerateStop a stop
	// condition. Requesting a stop on a bus that is already stopped is a
	// harmless no-op.
	GenerateStart()
	GenerateStop()

	// SetAckMode arms the acknowledge behavior for the next received byte.
	SetAckMode(AckMode)

	// WriteData loads one byte into the shift register (address or data);
	// ReadData drains one received byte.
	WriteData(b byte)
	ReadData() byte

	// ReadStatus samples the status register. Implementations replicate the
	// read-to-clear side effects of the modeled hardware.
	ReadStatus() StatusFlags

	// ClearAddrAck acknowledges the address-acked condition.
	ClearAddrAck()
	// ClearErrors acknowledges the given error conditions.
	ClearErrors(flags StatusFlags)
}

// InterruptSink receives interrupts from a controller binding. The engine's
// Bus implements it; bindings call OnEvent for protocol events and OnError
// for error conditions, always from the super-loop context in hosted runs.
type InterruptSink interface {
	OnEvent()
	OnError()
}
