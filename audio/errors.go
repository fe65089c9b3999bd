package audio

import "errors"

// Sentinel errors for audio package operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrInvalidArgument indicates a parameter outside its valid range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState indicates an operation on a stage that has ended
	// or was never started.
	ErrInvalidState = errors.New("invalid state")

	// ErrStreamEnd indicates a reader has no more frames to produce.
	ErrStreamEnd = errors.New("end of stream")

	// ErrSessionBroken indicates the latency monitor detected an
	// unrecoverable latency excursion and the session must be torn down.
	ErrSessionBroken = errors.New("session latency out of bounds")

	// ErrUnknownFormat indicates a payload type with no registered format.
	ErrUnknownFormat = errors.New("unknown payload format")
)
