package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/rtp"
)

type packetList struct {
	packets []*packet.Packet
}

func (l *packetList) Write(p *packet.Packet) error {
	l.packets = append(l.packets, p)
	return nil
}

type queueReader struct {
	packets []*packet.Packet
}

func (r *queueReader) Read() (*packet.Packet, error) {
	if len(r.packets) == 0 {
		return nil, nil
	}
	p := r.packets[0]
	r.packets = r.packets[1:]
	return p, nil
}

func (r *queueReader) push(p *packet.Packet) {
	r.packets = append(r.packets, p)
}

func testWriterConfig() WriterConfig {
	return WriterConfig{
		Scheme:            packet.FECSchemeRS8M,
		SourceBlockLength: 4,
		RepairBlockLength: 2,
		RepairPayloadType: 123,
	}
}

func mediaPacket(seq uint16, ts uint32) *packet.Packet {
	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(seq)
	}
	p := &packet.Packet{RTP: &packet.RTP{
		SourceID:    0xcafe,
		SeqNum:      seq,
		Timestamp:   ts,
		PayloadType: 11,
		Payload:     payload,
	}}
	p.AddFlags(packet.FlagRTP)
	return p
}

// wireTransfer re-parses a composed packet the way the receiver transport
// would, so the reader sees fresh packets rather than the sender's.
func wireTransfer(t *testing.T, data []byte, scheme packet.FECScheme) *packet.Packet {
	t.Helper()
	p := &packet.Packet{}
	require.NoError(t, rtp.Parse(p, data))
	require.NoError(t, ParsePacket(p, scheme))
	return p
}

func writeBlocks(t *testing.T, w *Writer, startSeq uint16, nBlocks int) {
	t.Helper()
	for i := 0; i < nBlocks*4; i++ {
		seq := startSeq + uint16(i)
		require.NoError(t, w.Write(mediaPacket(seq, uint32(i)*160)))
	}
}

func TestWriterEmitsRepairPerBlock(t *testing.T) {
	sourceSink := &packetList{}
	repairSink := &packetList{}

	w, err := NewWriter(testWriterConfig(), sourceSink, repairSink)
	require.NoError(t, err)

	writeBlocks(t, w, 100, 2)

	require.Len(t, sourceSink.packets, 8)
	require.Len(t, repairSink.packets, 4)

	first := repairSink.packets[0]
	assert.True(t, first.HasFlags(packet.FlagRTP|packet.FlagRepair|packet.FlagComposed))
	assert.Equal(t, uint8(123), first.RTP.PayloadType)
	assert.Equal(t, uint32(0xcafe), first.RTP.SourceID)
	assert.Equal(t, uint32(0), first.RTP.Timestamp, "repair carries the block start timestamp")
	assert.Equal(t, uint16(4), first.FEC.SymbolID)
	assert.Equal(t, uint16(0), first.FEC.BlockNumber)

	assert.Equal(t, uint16(1), repairSink.packets[2].FEC.BlockNumber)
	assert.Equal(t, first.RTP.SeqNum+1, repairSink.packets[1].RTP.SeqNum,
		"repair stream has its own contiguous seqnums")
}

func TestWriterRejectsDivergingSymbolSizes(t *testing.T) {
	w, err := NewWriter(testWriterConfig(), &packetList{}, &packetList{})
	require.NoError(t, err)

	require.NoError(t, w.Write(mediaPacket(1, 0)))

	odd := mediaPacket(2, 160)
	odd.RTP.Payload = odd.RTP.Payload[:10]
	assert.ErrorIs(t, w.Write(odd), ErrSymbolSize)
}

func TestWriterRejectsBarePacket(t *testing.T) {
	w, err := NewWriter(testWriterConfig(), &packetList{}, &packetList{})
	require.NoError(t, err)

	assert.ErrorIs(t, w.Write(&packet.Packet{}), ErrMalformed)
}

func TestReaderInvalidConfig(t *testing.T) {
	_, err := NewReader(ReaderConfig{Scheme: packet.FECSchemeRS8M, MaxBlocksAhead: 0}, &queueReader{}, &queueReader{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewReader(ReaderConfig{Scheme: packet.FECSchemeNone, MaxBlocksAhead: 2}, &queueReader{}, &queueReader{})
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestReaderLosslessPassThrough(t *testing.T) {
	sourceSink := &packetList{}
	repairSink := &packetList{}
	w, err := NewWriter(testWriterConfig(), sourceSink, repairSink)
	require.NoError(t, err)
	writeBlocks(t, w, 100, 1)

	sourceIn := &queueReader{}
	repairIn := &queueReader{}
	for _, p := range sourceSink.packets {
		sourceIn.push(wireTransfer(t, p.Data, packet.FECSchemeRS8M))
	}
	for _, p := range repairSink.packets {
		repairIn.push(wireTransfer(t, p.Data, packet.FECSchemeRS8M))
	}

	r, err := NewReader(DefaultReaderConfig(packet.FECSchemeRS8M), sourceIn, repairIn)
	require.NoError(t, err)

	for want := uint16(100); want < 104; want++ {
		p, err := r.Read()
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, want, p.RTP.SeqNum)
		assert.Equal(t, byte(want), p.RTP.Payload[0], "media payload restored without header")
	}

	recovered, failed, late := r.Stats()
	assert.Zero(t, recovered)
	assert.Zero(t, failed)
	assert.Zero(t, late)
}

func TestReaderRecoversLostPackets(t *testing.T) {
	sourceSink := &packetList{}
	repairSink := &packetList{}
	w, err := NewWriter(testWriterConfig(), sourceSink, repairSink)
	require.NoError(t, err)
	writeBlocks(t, w, 100, 1)

	sourceIn := &queueReader{}
	repairIn := &queueReader{}
	for i, p := range sourceSink.packets {
		if i == 1 || i == 3 {
			continue
		}
		sourceIn.push(wireTransfer(t, p.Data, packet.FECSchemeRS8M))
	}
	for _, p := range repairSink.packets {
		repairIn.push(wireTransfer(t, p.Data, packet.FECSchemeRS8M))
	}

	r, err := NewReader(DefaultReaderConfig(packet.FECSchemeRS8M), sourceIn, repairIn)
	require.NoError(t, err)

	for want := uint16(100); want < 104; want++ {
		p, err := r.Read()
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, want, p.RTP.SeqNum)
		for _, b := range p.RTP.Payload {
			assert.Equal(t, byte(want), b)
		}
	}

	recovered, failed, _ := r.Stats()
	assert.Equal(t, uint64(2), recovered)
	assert.Zero(t, failed)
}

func TestReaderWaitsForMissingSymbols(t *testing.T) {
	sourceSink := &packetList{}
	repairSink := &packetList{}
	w, err := NewWriter(testWriterConfig(), sourceSink, repairSink)
	require.NoError(t, err)
	writeBlocks(t, w, 100, 1)

	sourceIn := &queueReader{}
	sourceIn.push(wireTransfer(t, sourceSink.packets[1].Data, packet.FECSchemeRS8M))

	r, err := NewReader(DefaultReaderConfig(packet.FECSchemeRS8M), sourceIn, &queueReader{})
	require.NoError(t, err)

	p, err := r.Read()
	require.NoError(t, err)
	assert.Nil(t, p, "first symbol still repairable, keep waiting")
}

func TestReaderAbandonsStaleBlock(t *testing.T) {
	sourceSink := &packetList{}
	repairSink := &packetList{}
	w, err := NewWriter(testWriterConfig(), sourceSink, repairSink)
	require.NoError(t, err)
	writeBlocks(t, w, 100, 3)

	sourceIn := &queueReader{}
	repairIn := &queueReader{}
	for i, p := range sourceSink.packets {
		// Three of four packets of the first block are lost, which is
		// beyond what two parity symbols can repair.
		if i < 3 {
			continue
		}
		sourceIn.push(wireTransfer(t, p.Data, packet.FECSchemeRS8M))
	}
	for _, p := range repairSink.packets {
		repairIn.push(wireTransfer(t, p.Data, packet.FECSchemeRS8M))
	}

	config := ReaderConfig{Scheme: packet.FECSchemeRS8M, MaxBlocksAhead: 1}
	r, err := NewReader(config, sourceIn, repairIn)
	require.NoError(t, err)

	var seqs []uint16
	for {
		p, err := r.Read()
		require.NoError(t, err)
		if p == nil {
			break
		}
		seqs = append(seqs, p.RTP.SeqNum)
	}

	want := []uint16{103, 104, 105, 106, 107, 108, 109, 110, 111}
	assert.Equal(t, want, seqs, "unrecoverable symbols surface as gaps")
}

func TestReaderDropsLateBlock(t *testing.T) {
	sourceSink := &packetList{}
	repairSink := &packetList{}
	w, err := NewWriter(testWriterConfig(), sourceSink, repairSink)
	require.NoError(t, err)
	writeBlocks(t, w, 100, 1)

	sourceIn := &queueReader{}
	for _, p := range sourceSink.packets {
		sourceIn.push(wireTransfer(t, p.Data, packet.FECSchemeRS8M))
	}

	r, err := NewReader(DefaultReaderConfig(packet.FECSchemeRS8M), sourceIn, &queueReader{})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		p, err := r.Read()
		require.NoError(t, err)
		require.NotNil(t, p)
	}

	p, err := r.Read()
	require.NoError(t, err)
	require.Nil(t, p)

	// A straggler from the finished block is dropped, not replayed.
	sourceIn.push(wireTransfer(t, sourceSink.packets[0].Data, packet.FECSchemeRS8M))
	p, err = r.Read()
	require.NoError(t, err)
	assert.Nil(t, p)

	_, _, late := r.Stats()
	assert.Equal(t, uint64(1), late)
}
