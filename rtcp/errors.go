package rtcp

import "errors"

var (
	// ErrInvalidConfig means the session configuration is unusable.
	ErrInvalidConfig = errors.New("invalid rtcp config")

	// ErrMalformed means a compound packet cannot be parsed.
	ErrMalformed = errors.New("malformed rtcp packet")
)
