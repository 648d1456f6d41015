package pkg

import "errors"

// Controller core errors.
var (
	// ErrInvalidArgument indicates a malformed request or descriptor.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoMemory indicates a buffer or request could not be obtained.
	ErrNoMemory = errors.New("out of memory")

	// ErrShutdown indicates the bus is not enumerated or the gadget is gone.
	ErrShutdown = errors.New("shutdown")

	// ErrBusy indicates the endpoint still has queued work.
	ErrBusy = errors.New("busy")

	// ErrConnReset indicates a request was dequeued by the gadget.
	ErrConnReset = errors.New("connection reset")

	// ErrProtocol indicates a control transfer was abandoned.
	ErrProtocol = errors.New("protocol error")

	// ErrRange indicates a descriptor max packet size exceeds the endpoint.
	ErrRange = errors.New("out of range")

	// ErrNotBound indicates no gadget is registered.
	ErrNotBound = errors.New("no gadget bound")

	// ErrTimeout indicates a self-clearing register bit never cleared.
	ErrTimeout = errors.New("register timeout")
)

// Bus-level errors reported by the simulated host.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates the endpoint had no transfer armed.
	ErrNAK = errors.New("NAK received")

	// ErrNoDevice indicates the device is not attached to the bus.
	ErrNoDevice = errors.New("device not present")
)

// Gadget protocol errors.
var (
	// ErrShortHeader indicates the first image chunk could not hold a header.
	ErrShortHeader = errors.New("image header too short")

	// ErrBadHeader indicates an image header with an impossible length.
	ErrBadHeader = errors.New("invalid image header")

	// ErrUnknownCommand indicates an unrecognized diagnostic command.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrAddress indicates a memory range outside the mapped region.
	ErrAddress = errors.New("address out of range")
)

// Status is the completion status delivered with a request.
type Status int

// Request status values.
const (
	StatusSuccess    Status = iota // Transfer completed
	StatusInProgress               // Queued, not yet completed
	StatusShutdown                 // Flushed by disable, reset or unbind
	StatusConnReset                // Dequeued by the gadget
	StatusProtocol                 // Abandoned by a new SETUP
	StatusError                    // Failed for another reason
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInProgress:
		return "in-progress"
	case StatusShutdown:
		return "shutdown"
	case StatusConnReset:
		return "connreset"
	case StatusProtocol:
		return "protocol"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Err returns the corresponding error for the status, or nil on success.
func (s Status) Err() error {
	switch s {
	case StatusSuccess, StatusInProgress:
		return nil
	case StatusShutdown:
		return ErrShutdown
	case StatusConnReset:
		return ErrConnReset
	default:
		return ErrProtocol
	}
}
