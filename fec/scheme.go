package fec

import (
	"fmt"

	"github.com/opd-ai/streamkit/packet"
)

// BlockEncoder derives parity symbols for one block of source symbols.
type BlockEncoder interface {
	// Encode fills the pre-allocated parity slices from the source
	// slices. All slices must share one size.
	Encode(source, parity [][]byte) error
}

// BlockDecoder restores missing symbols of one block.
type BlockDecoder interface {
	// Repair reconstructs the nil entries among the first nSource
	// symbols, given the surviving source and parity symbols. symbols
	// holds blockLength entries, source first.
	Repair(symbols [][]byte, nSource int) error
}

// NewBlockEncoder creates an encoder for the scheme and block geometry.
func NewBlockEncoder(scheme packet.FECScheme, sourceN, repairN int) (BlockEncoder, error) {
	if sourceN <= 0 || repairN <= 0 {
		return nil, fmt.Errorf("%w: block geometry %d/%d", ErrInvalidConfig, sourceN, sourceN+repairN)
	}
	switch scheme {
	case packet.FECSchemeRS8M:
		return newRS8MCodec(sourceN, repairN)
	case packet.FECSchemeLDPC:
		return newLDPCCodec(sourceN, repairN), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

// NewBlockDecoder creates a decoder for the scheme and block geometry.
func NewBlockDecoder(scheme packet.FECScheme, sourceN, repairN int) (BlockDecoder, error) {
	if sourceN <= 0 || repairN <= 0 {
		return nil, fmt.Errorf("%w: block geometry %d/%d", ErrInvalidConfig, sourceN, sourceN+repairN)
	}
	switch scheme {
	case packet.FECSchemeRS8M:
		return newRS8MCodec(sourceN, repairN)
	case packet.FECSchemeLDPC:
		return newLDPCCodec(sourceN, repairN), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}
