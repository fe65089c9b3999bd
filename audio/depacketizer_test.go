package audio

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/streamkit/packet"
)

type packetStream struct {
	packets []*packet.Packet
}

func (s *packetStream) Read() (*packet.Packet, error) {
	if len(s.packets) == 0 {
		return nil, nil
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

func (s *packetStream) push(p *packet.Packet) {
	s.packets = append(s.packets, p)
}

func newMonoPacket(seq uint16, ts uint32, samples []float32) *packet.Packet {
	format := NewPCMFormat(PayloadTypeL16Mono, NewSampleSpec(44100, MonoChannelSet()))
	payload := make([]byte, format.PayloadSize(len(samples)))
	enc := format.NewEncoder()
	enc.Begin(payload)
	enc.Write(samples)
	enc.End()

	p := &packet.Packet{
		RTP: &packet.RTP{
			SeqNum:      seq,
			Timestamp:   ts,
			Duration:    uint32(len(samples)),
			PayloadType: PayloadTypeL16Mono,
			Payload:     payload,
		},
	}
	p.AddFlags(packet.FlagRTP)
	return p
}

func newMonoDepacketizer(reader packet.Reader) *Depacketizer {
	spec := NewSampleSpec(44100, MonoChannelSet())
	return NewDepacketizer(reader, newPCMDecoder(1), spec, false)
}

func TestDepacketizerDecodesContiguous(t *testing.T) {
	stream := &packetStream{}
	stream.push(newMonoPacket(1, 1000, []float32{0.1, 0.2}))
	stream.push(newMonoPacket(2, 1002, []float32{0.3, 0.4}))

	dp := newMonoDepacketizer(stream)
	assert.False(t, dp.Started())

	frame := NewFrame(make([]float32, 4))
	require.NoError(t, dp.Read(frame))

	want := []float32{0.1, 0.2, 0.3, 0.4}
	for i, s := range frame.Samples() {
		assert.InDelta(t, want[i], s, 1.0/32768)
	}
	assert.True(t, frame.HasFlags(FlagNonblank))
	assert.False(t, frame.HasFlags(FlagIncomplete))
	assert.False(t, frame.HasFlags(FlagDrops))

	assert.True(t, dp.Started())
	assert.Equal(t, uint32(1004), dp.Timestamp())

	decoded, missing, dropped := dp.Stats()
	assert.Equal(t, uint64(4), decoded)
	assert.Zero(t, missing)
	assert.Zero(t, dropped)
}

func TestDepacketizerFillsGaps(t *testing.T) {
	stream := &packetStream{}
	stream.push(newMonoPacket(1, 0, []float32{0.5, 0.5}))
	stream.push(newMonoPacket(3, 4, []float32{0.5, 0.5}))

	dp := newMonoDepacketizer(stream)

	frame := NewFrame(make([]float32, 6))
	require.NoError(t, dp.Read(frame))

	samples := frame.Samples()
	assert.InDelta(t, 0.5, samples[0], 1.0/32768)
	assert.InDelta(t, 0.5, samples[1], 1.0/32768)
	assert.Zero(t, samples[2])
	assert.Zero(t, samples[3])
	assert.InDelta(t, 0.5, samples[4], 1.0/32768)
	assert.InDelta(t, 0.5, samples[5], 1.0/32768)

	assert.True(t, frame.HasFlags(FlagNonblank|FlagIncomplete))
	assert.Equal(t, uint32(6), dp.Timestamp(), "stream position stays contiguous across the gap")

	decoded, missing, _ := dp.Stats()
	assert.Equal(t, uint64(4), decoded)
	assert.Equal(t, uint64(2), missing)
}

func TestDepacketizerDrainedFillsSilence(t *testing.T) {
	dp := newMonoDepacketizer(&packetStream{})

	frame := NewFrame(make([]float32, 4))
	require.NoError(t, dp.Read(frame))

	for _, s := range frame.Samples() {
		assert.Zero(t, s)
	}
	assert.False(t, frame.HasFlags(FlagNonblank))
	assert.True(t, frame.HasFlags(FlagIncomplete))
}

func TestDepacketizerDropsLatePackets(t *testing.T) {
	stream := &packetStream{}
	stream.push(newMonoPacket(1, 100, []float32{0.1, 0.2}))

	dp := newMonoDepacketizer(stream)

	frame := NewFrame(make([]float32, 2))
	require.NoError(t, dp.Read(frame))
	assert.Equal(t, uint32(102), dp.Timestamp())

	stream.push(newMonoPacket(2, 98, []float32{0.9, 0.9}))
	stream.push(newMonoPacket(3, 102, []float32{0.3, 0.4}))

	frame = NewFrame(make([]float32, 2))
	require.NoError(t, dp.Read(frame))

	assert.InDelta(t, 0.3, frame.Samples()[0], 1.0/32768)
	assert.InDelta(t, 0.4, frame.Samples()[1], 1.0/32768)
	assert.True(t, frame.HasFlags(FlagDrops))

	_, _, dropped := dp.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestDepacketizerShiftsOverlappingPackets(t *testing.T) {
	stream := &packetStream{}
	stream.push(newMonoPacket(1, 100, []float32{0.1, 0.2}))

	dp := newMonoDepacketizer(stream)

	frame := NewFrame(make([]float32, 4))
	require.NoError(t, dp.Read(frame))
	assert.Equal(t, uint32(104), dp.Timestamp())

	// Overlaps the last two emitted samples; only its tail is used.
	stream.push(newMonoPacket(2, 102, []float32{0.5, 0.6, 0.7, 0.8}))

	frame = NewFrame(make([]float32, 2))
	frame.ClearFlags()
	require.NoError(t, dp.Read(frame))

	assert.InDelta(t, 0.7, frame.Samples()[0], 1.0/32768)
	assert.InDelta(t, 0.8, frame.Samples()[1], 1.0/32768)
	assert.True(t, frame.HasFlags(FlagNonblank))
	assert.False(t, frame.HasFlags(FlagDrops))
}

func TestDepacketizerBeepFill(t *testing.T) {
	spec := NewSampleSpec(44100, MonoChannelSet())
	dp := NewDepacketizer(&packetStream{}, newPCMDecoder(1), spec, true)

	frame := NewFrame(make([]float32, 64))
	require.NoError(t, dp.Read(frame))

	var energy float64
	for _, s := range frame.Samples() {
		energy += float64(s) * float64(s)
	}
	assert.Greater(t, energy, 0.0, "beep fill produces a tone, not silence")
}

func TestDepacketizerCaptureTimestamp(t *testing.T) {
	spec := NewSampleSpec(44100, MonoChannelSet())
	stream := &packetStream{}

	first := newMonoPacket(1, 1000, []float32{0.1, 0.2})
	first.RTP.CaptureTS = 1_000_000_000
	stream.push(first)
	stream.push(newMonoPacket(2, 1002, []float32{0.3, 0.4}))

	dp := NewDepacketizer(stream, newPCMDecoder(1), spec, false)

	frame := NewFrame(make([]float32, 2))
	require.NoError(t, dp.Read(frame))
	assert.Equal(t, int64(1_000_000_000), frame.CaptureTimestamp())

	frame = NewFrame(make([]float32, 2))
	require.NoError(t, dp.Read(frame))
	want := 1_000_000_000 + int64(spec.SamplesPerChanToDuration(2))
	assert.Equal(t, want, frame.CaptureTimestamp())
}

type flakyDecoder struct {
	FrameDecoder
	badTS uint32
}

func (d *flakyDecoder) Begin(rtpTS uint32, payload []byte) error {
	if rtpTS == d.badTS {
		return fmt.Errorf("%w: corrupt payload", ErrInvalidArgument)
	}
	return d.FrameDecoder.Begin(rtpTS, payload)
}

func TestDepacketizerDropsUndecodablePackets(t *testing.T) {
	stream := &packetStream{}
	stream.push(newMonoPacket(1, 100, []float32{0.1, 0.2}))
	stream.push(newMonoPacket(2, 102, []float32{0.9, 0.9}))
	stream.push(newMonoPacket(3, 104, []float32{0.3, 0.4}))

	spec := NewSampleSpec(44100, MonoChannelSet())
	dp := NewDepacketizer(stream, &flakyDecoder{FrameDecoder: newPCMDecoder(1), badTS: 102}, spec, false)

	frame := NewFrame(make([]float32, 6))
	require.NoError(t, dp.Read(frame))

	samples := frame.Samples()
	assert.InDelta(t, 0.1, samples[0], 1.0/32768)
	assert.Zero(t, samples[2], "undecodable packet leaves a filled gap")
	assert.Zero(t, samples[3])
	assert.InDelta(t, 0.3, samples[4], 1.0/32768)
	assert.True(t, frame.HasFlags(FlagDrops))

	_, missing, dropped := dp.Stats()
	assert.Equal(t, uint64(2), missing)
	assert.Equal(t, uint64(1), dropped)
}
