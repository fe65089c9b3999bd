package packet

import (
	"github.com/sirupsen/logrus"
)

// interleaverBlock is how many packets are collected before they are
// released in permuted order.
const interleaverBlock = 10

// Interleaver reorders a packet stream so that a burst loss on the wire
// turns into scattered single losses, which block FEC repairs far better.
//
// Packets are collected into fixed-size blocks and released in a fixed
// permutation of the block. Flush releases a partial block in original
// order at stream end.
type Interleaver struct {
	out Writer

	// perm spreads adjacent packets as far apart as possible within a
	// block.
	perm [interleaverBlock]int

	pending []*Packet
}

// NewInterleaver creates an interleaver in front of out.
func NewInterleaver(out Writer) *Interleaver {
	in := &Interleaver{
		out:     out,
		pending: make([]*Packet, 0, interleaverBlock),
	}

	// Stride walk of the block: 0, 3, 6, 9, 2, 5, 8, 1, 4, 7 for a
	// block of ten with stride three.
	stride := 3
	pos := 0
	used := [interleaverBlock]bool{}
	for i := 0; i < interleaverBlock; i++ {
		for used[pos] {
			pos = (pos + 1) % interleaverBlock
		}
		in.perm[i] = pos
		used[pos] = true
		pos = (pos + stride) % interleaverBlock
	}

	logrus.WithFields(logrus.Fields{
		"block_size": interleaverBlock,
	}).Debug("interleaver: created")
	return in
}

// Write collects the packet, releasing a full block in permuted order.
func (in *Interleaver) Write(p *Packet) error {
	in.pending = append(in.pending, p)
	if len(in.pending) < interleaverBlock {
		return nil
	}

	for _, idx := range in.perm {
		if err := in.out.Write(in.pending[idx]); err != nil {
			return err
		}
	}
	in.pending = in.pending[:0]
	return nil
}

// Flush releases a partial block in original order.
func (in *Interleaver) Flush() error {
	for _, p := range in.pending {
		if err := in.out.Write(p); err != nil {
			return err
		}
	}
	in.pending = in.pending[:0]
	return nil
}
