package i2cmaster

import "fmt"

// Call-rejection errors, returned synchronously from Reserve/Release/Write/Read.
// They never describe the outcome of a started transaction; see ErrorKind for
// that. None of them is retried by the engine itself.
var (
	ErrAlreadyReserved = fmt.Errorf("bus already reserved")
	ErrNotReserved     = fmt.Errorf("bus not reserved by caller")
	ErrBusy            = fmt.Errorf("transaction in progress")
	ErrNotStarted      = fmt.Errorf("bus not started")
	ErrInvalidArgument = fmt.Errorf("invalid argument")

	// ErrBusBusy is reported by synchronous transports whose underlying
	// engine could not take the command.
	ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")
)

// ErrorKind classifies the outcome of a completed transaction. It is a closed
// taxonomy: the error path maps whatever the hardware reports onto exactly one
// of these values, first-error-wins.
type ErrorKind uint8

const (
	ErrorNone ErrorKind = iota
	ErrorInvalidInstance
	ErrorBusBusy
	ErrorGuardTimeout
	ErrorPEC
	ErrorProtocolTimeout
	ErrorAckFail
	ErrorBusError
	ErrorUnexpectedInterrupt
)

func (e ErrorKind) String() string {
	switch e {
	case ErrorNone:
		return "none"
	case ErrorInvalidInstance:
		return "invalid instance"
	case ErrorBusBusy:
		return "bus busy"
	case ErrorGuardTimeout:
		return "guard timeout"
	case ErrorPEC:
		return "packet error code"
	case ErrorProtocolTimeout:
		return "protocol timeout"
	case ErrorAckFail:
		return "ack failure"
	case ErrorBusError:
		return "bus error"
	case ErrorUnexpectedInterrupt:
		return "unexpected interrupt"
	}
	return fmt.Sprintf("unknown (%d)", uint8(e))
}
