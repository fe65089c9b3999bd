package fec

import (
	"fmt"
	"math/rand"
)

// ldpcSourceDegree is how many parity equations each source symbol
// participates in.
const ldpcSourceDegree = 3

// ldpcCodec is an XOR staircase code. Each parity symbol is the XOR of a
// pseudo-random subset of source symbols and the previous parity symbol;
// decoding peels equations with a single missing symbol until the block
// is whole. Cheaper than Reed-Solomon but not guaranteed to survive every
// loss pattern of repairN symbols.
type ldpcCodec struct {
	sourceN int
	repairN int

	// equations[j] lists the source symbols XORed into parity j.
	equations [][]int
}

func newLDPCCodec(sourceN, repairN int) *ldpcCodec {
	c := &ldpcCodec{
		sourceN:   sourceN,
		repairN:   repairN,
		equations: make([][]int, repairN),
	}

	// The subset choice must be identical on sender and receiver, so it
	// is derived from the block geometry alone.
	rng := rand.New(rand.NewSource(int64(sourceN)<<16 | int64(repairN)))

	degree := ldpcSourceDegree
	if degree > repairN {
		degree = repairN
	}
	for i := 0; i < sourceN; i++ {
		picked := rng.Perm(repairN)[:degree]
		for _, j := range picked {
			c.equations[j] = append(c.equations[j], i)
		}
	}
	return c
}

func (c *ldpcCodec) Encode(source, parity [][]byte) error {
	if len(source) != c.sourceN || len(parity) != c.repairN {
		return fmt.Errorf("%w: got %d/%d shards", ErrInvalidConfig, len(source), len(parity))
	}

	for j := 0; j < c.repairN; j++ {
		out := parity[j]
		for i := range out {
			out[i] = 0
		}
		for _, src := range c.equations[j] {
			xorInto(out, source[src])
		}
		if j > 0 {
			xorInto(out, parity[j-1])
		}
	}
	return nil
}

func (c *ldpcCodec) Repair(symbols [][]byte, nSource int) error {
	if len(symbols) != c.sourceN+c.repairN || nSource != c.sourceN {
		return fmt.Errorf("%w: got %d symbols", ErrInvalidConfig, len(symbols))
	}

	size := 0
	for _, s := range symbols {
		if s != nil {
			size = len(s)
			break
		}
	}
	if size == 0 {
		return fmt.Errorf("%w: empty block", ErrDecodeFailed)
	}

	// Equation j spans its source subset, parity j, and parity j-1.
	members := make([][]int, c.repairN)
	for j := 0; j < c.repairN; j++ {
		eq := append([]int(nil), c.equations[j]...)
		eq = append(eq, c.sourceN+j)
		if j > 0 {
			eq = append(eq, c.sourceN+j-1)
		}
		members[j] = eq
	}

	for progress := true; progress; {
		progress = false
		for _, eq := range members {
			missing := -1
			nMissing := 0
			for _, idx := range eq {
				if symbols[idx] == nil {
					missing = idx
					nMissing++
				}
			}
			if nMissing != 1 {
				continue
			}

			restored := make([]byte, size)
			for _, idx := range eq {
				if idx != missing {
					xorInto(restored, symbols[idx])
				}
			}
			symbols[missing] = restored
			progress = true
		}
	}

	for i := 0; i < nSource; i++ {
		if symbols[i] == nil {
			return fmt.Errorf("%w: source symbol %d unrecoverable", ErrDecodeFailed, i)
		}
	}
	return nil
}

func xorInto(dst, src []byte) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}
