package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueSeqnums(q *SortedQueue) []uint16 {
	var seqs []uint16
	q.Each(func(p *Packet) bool {
		seqs = append(seqs, p.RTP.SeqNum)
		return true
	})
	return seqs
}

func TestSortedQueueOrdersArrivals(t *testing.T) {
	q := NewSortedQueue(0)

	for _, seq := range []uint16{3, 1, 4, 2, 5} {
		require.NoError(t, q.Write(rtpPacket(seq, uint32(seq)*100)))
	}

	assert.Equal(t, 5, q.Len())
	assert.Equal(t, []uint16{1, 2, 3, 4, 5}, queueSeqnums(q))

	for want := uint16(1); want <= 5; want++ {
		p, err := q.Read()
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, want, p.RTP.SeqNum)
	}

	p, err := q.Read()
	require.NoError(t, err)
	assert.Nil(t, p, "drained queue reads nil")
}

func TestSortedQueueWrapAround(t *testing.T) {
	q := NewSortedQueue(0)

	require.NoError(t, q.Write(rtpPacket(1, 100)))
	require.NoError(t, q.Write(rtpPacket(65534, 50)))
	require.NoError(t, q.Write(rtpPacket(0, 80)))
	require.NoError(t, q.Write(rtpPacket(65535, 60)))

	assert.Equal(t, []uint16{65534, 65535, 0, 1}, queueSeqnums(q))
}

func TestSortedQueueDropsLate(t *testing.T) {
	q := NewSortedQueue(0)

	require.NoError(t, q.Write(rtpPacket(10, 100)))
	p, err := q.Read()
	require.NoError(t, err)
	require.Equal(t, uint16(10), p.RTP.SeqNum)

	require.NoError(t, q.Write(rtpPacket(9, 90)))
	require.NoError(t, q.Write(rtpPacket(10, 100)))
	assert.Zero(t, q.Len())

	late, _, _ := q.Dropped()
	assert.Equal(t, uint64(2), late)
}

func TestSortedQueueDropsDuplicates(t *testing.T) {
	q := NewSortedQueue(0)

	require.NoError(t, q.Write(rtpPacket(5, 500)))
	require.NoError(t, q.Write(rtpPacket(5, 500)))

	assert.Equal(t, 1, q.Len())
	_, dup, _ := q.Dropped()
	assert.Equal(t, uint64(1), dup)
}

func TestSortedQueueOverflowEvictsOldest(t *testing.T) {
	q := NewSortedQueue(3)

	for seq := uint16(1); seq <= 4; seq++ {
		require.NoError(t, q.Write(rtpPacket(seq, uint32(seq))))
	}

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []uint16{2, 3, 4}, queueSeqnums(q))

	_, _, overflow := q.Dropped()
	assert.Equal(t, uint64(1), overflow)
}

func TestSortedQueueHeadTail(t *testing.T) {
	q := NewSortedQueue(0)

	assert.Nil(t, q.Head())
	assert.Nil(t, q.Tail())

	require.NoError(t, q.Write(rtpPacket(7, 700)))
	require.NoError(t, q.Write(rtpPacket(3, 300)))

	assert.Equal(t, uint16(3), q.Head().RTP.SeqNum)
	assert.Equal(t, uint16(7), q.Tail().RTP.SeqNum)
	assert.Equal(t, 2, q.Len(), "head and tail do not consume")
}

func TestSortedQueueIgnoresNonRTP(t *testing.T) {
	q := NewSortedQueue(0)

	require.NoError(t, q.Write(nil))
	require.NoError(t, q.Write(&Packet{}))
	assert.Zero(t, q.Len())
}

func TestSortedQueueEachStopsEarly(t *testing.T) {
	q := NewSortedQueue(0)
	for seq := uint16(1); seq <= 5; seq++ {
		require.NoError(t, q.Write(rtpPacket(seq, 0)))
	}

	var visited int
	q.Each(func(p *Packet) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}
