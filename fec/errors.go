package fec

import "errors"

var (
	// ErrUnsupportedScheme means the requested FEC scheme has no codec.
	ErrUnsupportedScheme = errors.New("unsupported fec scheme")

	// ErrInvalidConfig means the block geometry is unusable.
	ErrInvalidConfig = errors.New("invalid fec config")

	// ErrSymbolSize means the symbols of one block have diverging sizes.
	ErrSymbolSize = errors.New("mismatched fec symbol size")

	// ErrMalformed means a packet's FEC payload header cannot be parsed.
	ErrMalformed = errors.New("malformed fec packet")

	// ErrDecodeFailed means a block had enough symbols but the decoder
	// could not restore the missing ones.
	ErrDecodeFailed = errors.New("fec decode failed")
)
