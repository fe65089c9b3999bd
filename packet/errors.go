package packet

import "errors"

// Sentinel errors for packet package operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrPoolExhausted indicates a fixed-size pool has no free entries.
	ErrPoolExhausted = errors.New("packet pool exhausted")

	// ErrQueueFull indicates a bounded queue rejected a packet.
	ErrQueueFull = errors.New("packet queue full")

	// ErrNoRoute indicates the router found no queue for a packet.
	ErrNoRoute = errors.New("no route for packet")

	// ErrMalformed indicates a packet that cannot be parsed.
	ErrMalformed = errors.New("malformed packet")
)
