package fec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// rs8mCodec is Reed-Solomon over GF(2^8). A block survives the loss of
// any repairN symbols.
type rs8mCodec struct {
	rs      reedsolomon.Encoder
	sourceN int
	repairN int
}

func newRS8MCodec(sourceN, repairN int) (*rs8mCodec, error) {
	rs, err := reedsolomon.New(sourceN, repairN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &rs8mCodec{
		rs:      rs,
		sourceN: sourceN,
		repairN: repairN,
	}, nil
}

func (c *rs8mCodec) Encode(source, parity [][]byte) error {
	if len(source) != c.sourceN || len(parity) != c.repairN {
		return fmt.Errorf("%w: got %d/%d shards", ErrInvalidConfig, len(source), len(parity))
	}
	shards := make([][]byte, 0, c.sourceN+c.repairN)
	shards = append(shards, source...)
	shards = append(shards, parity...)
	if err := c.rs.Encode(shards); err != nil {
		return fmt.Errorf("rs8m encode: %w", err)
	}
	return nil
}

func (c *rs8mCodec) Repair(symbols [][]byte, nSource int) error {
	if len(symbols) != c.sourceN+c.repairN || nSource != c.sourceN {
		return fmt.Errorf("%w: got %d symbols", ErrInvalidConfig, len(symbols))
	}
	if err := c.rs.ReconstructData(symbols); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return nil
}
