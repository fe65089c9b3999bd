package packet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func rtpPacket(seq uint16, ts uint32) *Packet {
	p := &Packet{RTP: &RTP{SeqNum: seq, Timestamp: ts}}
	p.AddFlags(FlagRTP)
	return p
}

func TestSeqnumDiff(t *testing.T) {
	tests := []struct {
		a, b uint16
		want int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{0, 1, -1},
		{0, 65535, 1},
		{65535, 0, -1},
		{32767, 0, 32767},
		{32768, 0, -32768},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SeqnumDiff(tt.a, tt.b), "diff(%d, %d)", tt.a, tt.b)
	}
}

func TestSeqnumLess(t *testing.T) {
	assert.True(t, SeqnumLess(0, 1))
	assert.True(t, SeqnumLess(65535, 0), "wrap-around order")
	assert.False(t, SeqnumLess(1, 0))
	assert.False(t, SeqnumLess(5, 5))
}

func TestTimestampDiff(t *testing.T) {
	tests := []struct {
		a, b uint32
		want int64
	}{
		{0, 0, 0},
		{100, 50, 50},
		{50, 100, -50},
		{0, math.MaxUint32, 1},
		{math.MaxUint32, 0, -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TimestampDiff(tt.a, tt.b), "diff(%d, %d)", tt.a, tt.b)
	}
}

func TestBlknumDiff(t *testing.T) {
	assert.Equal(t, 1, BlknumDiff(0, 65535))
	assert.Equal(t, -1, BlknumDiff(65535, 0))
	assert.Equal(t, 0, BlknumDiff(7, 7))
}

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare(rtpPacket(1, 100), rtpPacket(2, 200)))
	assert.Positive(t, Compare(rtpPacket(2, 200), rtpPacket(1, 100)))
	assert.Zero(t, Compare(rtpPacket(5, 500), rtpPacket(5, 500)))

	assert.Negative(t, Compare(rtpPacket(65535, 0), rtpPacket(0, 100)), "seqnum wrap")

	// Equal seqnums order by timestamp.
	assert.Negative(t, Compare(rtpPacket(5, 100), rtpPacket(5, 200)))
	assert.Positive(t, Compare(rtpPacket(5, 200), rtpPacket(5, 100)))

	assert.Zero(t, Compare(&Packet{}, rtpPacket(1, 1)), "packets without an RTP view are unordered")
}

func TestPacketFlags(t *testing.T) {
	p := &Packet{}

	assert.False(t, p.HasFlags(FlagRTP))
	p.AddFlags(FlagRTP | FlagRepair)
	assert.True(t, p.HasFlags(FlagRTP))
	assert.True(t, p.HasFlags(FlagRTP|FlagRepair))
	assert.False(t, p.HasFlags(FlagControl))
	assert.False(t, p.HasFlags(FlagRTP|FlagControl))
}

func TestPacketReset(t *testing.T) {
	p := rtpPacket(10, 1000)
	p.Data = []byte{1, 2, 3}
	p.Reset()

	assert.Equal(t, Flags(0), p.Flags())
	assert.Nil(t, p.RTP)
	assert.Nil(t, p.Data)
}

func TestWriterFunc(t *testing.T) {
	var got *Packet
	w := WriterFunc(func(p *Packet) error {
		got = p
		return nil
	})

	p := rtpPacket(1, 1)
	assert.NoError(t, w.Write(p))
	assert.Same(t, p, got)
}
