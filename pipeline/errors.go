package pipeline

import "errors"

var (
	// ErrInvalidConfig means a pipeline configuration value is unusable.
	ErrInvalidConfig = errors.New("invalid pipeline config")

	// ErrBrokenSlot means a slot failed a configuration call and refuses
	// further operations until unlinked.
	ErrBrokenSlot = errors.New("slot is broken")

	// ErrEndpointConflict means an endpoint combination violates the
	// slot rules.
	ErrEndpointConflict = errors.New("conflicting endpoint configuration")

	// ErrUnknownEndpoint means the referenced endpoint does not exist.
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrUnknownSlot means the referenced slot does not exist.
	ErrUnknownSlot = errors.New("unknown slot")

	// ErrLoopClosed means the loop no longer accepts tasks or frames.
	ErrLoopClosed = errors.New("pipeline loop is closed")
)
