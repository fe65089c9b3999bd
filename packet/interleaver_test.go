package packet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sinkSeqnums(s *routeSink) []uint16 {
	var seqs []uint16
	for _, p := range s.packets {
		seqs = append(seqs, p.RTP.SeqNum)
	}
	return seqs
}

func TestInterleaverPermutesFullBlock(t *testing.T) {
	sink := &routeSink{}
	in := NewInterleaver(sink)

	for seq := uint16(0); seq < 10; seq++ {
		require.NoError(t, in.Write(rtpPacket(seq, 0)))
	}

	assert.Equal(t, []uint16{0, 3, 6, 9, 2, 5, 8, 1, 4, 7}, sinkSeqnums(sink))
}

func TestInterleaverHoldsPartialBlock(t *testing.T) {
	sink := &routeSink{}
	in := NewInterleaver(sink)

	for seq := uint16(0); seq < 4; seq++ {
		require.NoError(t, in.Write(rtpPacket(seq, 0)))
	}
	assert.Empty(t, sink.packets, "partial block is buffered")

	require.NoError(t, in.Flush())
	assert.Equal(t, []uint16{0, 1, 2, 3}, sinkSeqnums(sink), "flush keeps original order")

	require.NoError(t, in.Flush())
	assert.Len(t, sink.packets, 4, "flush on empty block is a no-op")
}

func TestInterleaverConsecutiveBlocks(t *testing.T) {
	sink := &routeSink{}
	in := NewInterleaver(sink)

	for seq := uint16(0); seq < 20; seq++ {
		require.NoError(t, in.Write(rtpPacket(seq, 0)))
	}

	require.Len(t, sink.packets, 20)
	assert.Equal(t, []uint16{10, 13, 16, 19, 12, 15, 18, 11, 14, 17},
		sinkSeqnums(sink)[10:])
}

func TestInterleaverPropagatesWriteError(t *testing.T) {
	boom := errors.New("sink failed")
	in := NewInterleaver(&routeSink{err: boom})

	for seq := uint16(0); seq < 9; seq++ {
		require.NoError(t, in.Write(rtpPacket(seq, 0)))
	}
	assert.ErrorIs(t, in.Write(rtpPacket(9, 0)), boom)
}
