package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
)

type packetList struct {
	packets []*packet.Packet
}

func (l *packetList) Write(p *packet.Packet) error {
	l.packets = append(l.packets, p)
	return nil
}

func testSenderConfig() SenderConfig {
	config := DefaultSenderConfig(audio.NewSampleSpec(44100, audio.StereoChannelSet()))
	// Ten milliseconds at 44100 Hz is exactly 441 samples per channel.
	config.PacketLength = 10 * time.Millisecond
	config.FEC.SourceBlockLength = 4
	config.FEC.RepairBlockLength = 2
	return config
}

func newTestSender(t *testing.T) *SenderSink {
	t.Helper()
	ss, err := NewSenderSink(testSenderConfig(), DefaultLoopConfig(), audio.NewRegistry(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })
	return ss
}

func senderFrame(samples int, value float32) *audio.Frame {
	buf := make([]float32, samples)
	for i := range buf {
		buf[i] = value
	}
	return audio.NewFrame(buf)
}

func TestSenderSinkEmitsSourcePackets(t *testing.T) {
	ss := newTestSender(t)

	id, err := ss.CreateSlot()
	require.NoError(t, err)

	sink := &packetList{}
	inbound, err := ss.AddEndpoint(id, InterfaceSource, ProtoRTP, sink)
	require.NoError(t, err)
	assert.Nil(t, inbound, "media endpoints have no inbound writer")

	// Two packets worth of audio, 441 samples per channel each.
	require.NoError(t, ss.Write(senderFrame(882, 0.25)))
	require.NoError(t, ss.Write(senderFrame(882, 0.25)))

	require.Len(t, sink.packets, 2)
	first := sink.packets[0]
	assert.True(t, first.HasFlags(packet.FlagRTP|packet.FlagComposed))
	assert.Equal(t, audio.PayloadTypeL16Stereo, first.RTP.PayloadType)
	assert.Equal(t, uint32(441), first.RTP.Duration)
	assert.Len(t, first.RTP.Payload, 441*2*2, "two bytes per sample, two channels")

	second := sink.packets[1]
	assert.Equal(t, first.RTP.SeqNum+1, second.RTP.SeqNum)
	assert.Equal(t, first.RTP.Timestamp+441, second.RTP.Timestamp)
	assert.Equal(t, first.RTP.SourceID, second.RTP.SourceID)

	m, err := ss.SlotMetrics(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.PacketsEmitted)
	assert.Equal(t, first.RTP.SourceID, m.SourceID)
	assert.False(t, m.Broken)
}

func TestSenderSinkEmitsRepairPackets(t *testing.T) {
	ss := newTestSender(t)

	id, err := ss.CreateSlot()
	require.NoError(t, err)

	sourceSink := &packetList{}
	repairSink := &packetList{}
	_, err = ss.AddEndpoint(id, InterfaceSource, ProtoRTPRS8M, sourceSink)
	require.NoError(t, err)
	_, err = ss.AddEndpoint(id, InterfaceRepair, ProtoRS8M, repairSink)
	require.NoError(t, err)

	// One FEC block of four source packets.
	for i := 0; i < 4; i++ {
		require.NoError(t, ss.Write(senderFrame(882, 0.25)))
	}

	require.Len(t, sourceSink.packets, 4)
	require.Len(t, repairSink.packets, 2)

	source := sourceSink.packets[0]
	require.NotNil(t, source.FEC)
	assert.Equal(t, uint16(4), source.FEC.SourceBlockLength)
	assert.Equal(t, uint16(6), source.FEC.BlockLength)

	repair := repairSink.packets[0]
	assert.True(t, repair.HasFlags(packet.FlagRTP|packet.FlagRepair|packet.FlagComposed))
	assert.Equal(t, uint8(123), repair.RTP.PayloadType)
	assert.Equal(t, source.RTP.SourceID, repair.RTP.SourceID)
}

func TestSenderSinkFECWithoutRepairHoldsStream(t *testing.T) {
	ss := newTestSender(t)

	id, err := ss.CreateSlot()
	require.NoError(t, err)

	sourceSink := &packetList{}
	_, err = ss.AddEndpoint(id, InterfaceSource, ProtoRTPRS8M, sourceSink)
	require.NoError(t, err)

	// Frames written before the repair endpoint completes the set are
	// discarded, not queued.
	require.NoError(t, ss.Write(senderFrame(882, 0.25)))
	assert.Empty(t, sourceSink.packets)
}

func TestSenderSlotConflictBreaksSlot(t *testing.T) {
	ss := newTestSender(t)

	id, err := ss.CreateSlot()
	require.NoError(t, err)

	_, err = ss.AddEndpoint(id, InterfaceRepair, ProtoRS8M, &packetList{})
	assert.ErrorIs(t, err, ErrEndpointConflict)

	_, err = ss.AddEndpoint(id, InterfaceSource, ProtoRTP, &packetList{})
	assert.ErrorIs(t, err, ErrBrokenSlot)

	m, err := ss.SlotMetrics(id)
	require.NoError(t, err)
	assert.True(t, m.Broken)
}

func TestSenderSlotRejectsMismatchedSchemes(t *testing.T) {
	ss := newTestSender(t)

	id, err := ss.CreateSlot()
	require.NoError(t, err)

	_, err = ss.AddEndpoint(id, InterfaceSource, ProtoRTPRS8M, &packetList{})
	require.NoError(t, err)

	_, err = ss.AddEndpoint(id, InterfaceRepair, ProtoLDPC, &packetList{})
	assert.ErrorIs(t, err, ErrEndpointConflict)
}

func TestSenderSinkFlushesPartialPacketOnDelete(t *testing.T) {
	ss := newTestSender(t)

	id, err := ss.CreateSlot()
	require.NoError(t, err)

	sink := &packetList{}
	_, err = ss.AddEndpoint(id, InterfaceSource, ProtoRTP, sink)
	require.NoError(t, err)

	// Half a packet stays buffered until the slot is deleted.
	require.NoError(t, ss.Write(senderFrame(440, 0.25)))
	assert.Empty(t, sink.packets)

	require.NoError(t, ss.DeleteSlot(id))
	require.Len(t, sink.packets, 1)
	assert.Equal(t, uint32(220), sink.packets[0].RTP.Duration)

	_, err = ss.SlotMetrics(id)
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

func TestSenderSinkControlEndpoint(t *testing.T) {
	ss := newTestSender(t)

	id, err := ss.CreateSlot()
	require.NoError(t, err)

	_, err = ss.AddEndpoint(id, InterfaceSource, ProtoRTP, &packetList{})
	require.NoError(t, err)

	inbound, err := ss.AddEndpoint(id, InterfaceControl, ProtoRTCP, &packetList{})
	require.NoError(t, err)
	assert.NotNil(t, inbound, "control endpoints accept inbound rtcp")
}

func TestSenderSinkUnknownSlot(t *testing.T) {
	ss := newTestSender(t)

	assert.ErrorIs(t, ss.DeleteSlot(7), ErrUnknownSlot)
	assert.ErrorIs(t, ss.RemoveEndpoint(7, InterfaceSource), ErrUnknownSlot)
	_, err := ss.AddEndpoint(7, InterfaceSource, ProtoRTP, &packetList{})
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

func TestSenderSinkClose(t *testing.T) {
	ss, err := NewSenderSink(testSenderConfig(), DefaultLoopConfig(), audio.NewRegistry(), nil)
	require.NoError(t, err)

	id, err := ss.CreateSlot()
	require.NoError(t, err)
	sink := &packetList{}
	_, err = ss.AddEndpoint(id, InterfaceSource, ProtoRTP, sink)
	require.NoError(t, err)

	require.NoError(t, ss.Write(senderFrame(440, 0.25)))
	require.NoError(t, ss.Close())

	assert.Len(t, sink.packets, 1, "close flushes the partial packet")
	assert.ErrorIs(t, ss.Write(senderFrame(882, 0.25)), ErrLoopClosed)
	_, err = ss.CreateSlot()
	assert.ErrorIs(t, err, ErrLoopClosed)
}
