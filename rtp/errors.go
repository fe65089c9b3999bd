package rtp

import "errors"

// Sentinel errors for rtp package operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrMalformed indicates bytes that cannot be parsed as RTP.
	ErrMalformed = errors.New("malformed rtp packet")

	// ErrPolicyViolation indicates a packet the validator rejected.
	ErrPolicyViolation = errors.New("packet rejected by validator")

	// ErrNotComposed indicates serialization was requested for a packet
	// without an RTP view.
	ErrNotComposed = errors.New("packet has no rtp view to compose")
)
