package audio

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/packet"
)

// Packetizer cuts a written sample stream into RTP packets of a fixed
// per-channel sample count and hands them to a packet writer.
//
// Sequence numbers increment by one per packet; the RTP timestamp
// advances by the packet duration. Both start at random values. The
// capture timestamp of the first sample of each packet is carried onto
// the packet when known.
type Packetizer struct {
	writer     packet.Writer
	packetPool *packet.PacketPool
	bufferPool *packet.BufferPool
	format     *Format
	spec       SampleSpec

	samplesPerPacket int
	payloadSize      int

	sourceID  uint32
	seqnum    uint16
	timestamp uint32

	encoder FrameEncoder

	active    *packet.Packet
	activeBuf []byte
	written   int // per-channel samples in the active packet
	activeCTS int64

	lastCTS     int64
	lastRTPTime uint32

	packetsTotal uint64
	bytesTotal   uint64
}

// NewPacketizer creates a packetizer emitting packets of samplesPerPacket
// per-channel samples in the given format.
func NewPacketizer(
	writer packet.Writer,
	packetPool *packet.PacketPool,
	bufferPool *packet.BufferPool,
	format *Format,
	spec SampleSpec,
	samplesPerPacket int,
) *Packetizer {
	p := &Packetizer{
		writer:           writer,
		packetPool:       packetPool,
		bufferPool:       bufferPool,
		format:           format,
		spec:             spec,
		samplesPerPacket: samplesPerPacket,
		payloadSize:      format.PayloadSize(samplesPerPacket),
		sourceID:         rand.Uint32(),
		seqnum:           uint16(rand.Uint32()),
		timestamp:        rand.Uint32(),
		encoder:          format.NewEncoder(),
	}
	logrus.WithFields(logrus.Fields{
		"source_id":          p.sourceID,
		"payload_type":       format.PayloadType,
		"samples_per_packet": samplesPerPacket,
		"sample_spec":        spec.String(),
	}).Info("packetizer: created")
	return p
}

// SourceID returns the RTP source identifier of the emitted stream.
func (p *Packetizer) SourceID() uint32 {
	return p.sourceID
}

// PacketsEmitted returns the number of packets handed downstream.
func (p *Packetizer) PacketsEmitted() uint64 {
	return p.packetsTotal
}

// BytesEmitted returns the total payload bytes handed downstream.
func (p *Packetizer) BytesEmitted() uint64 {
	return p.bytesTotal
}

// Mapping returns the capture timestamp and RTP timestamp of the most
// recently emitted packet. The capture timestamp is zero until the
// upstream clock is known.
func (p *Packetizer) Mapping() (captureTS int64, rtpTS uint32) {
	return p.lastCTS, p.lastRTPTime
}

// Write consumes the frame, emitting packets as they fill.
func (p *Packetizer) Write(frame *Frame) error {
	CheckFrame(frame, p.spec)

	samples := frame.Samples()
	ch := p.spec.NumChannels()
	cts := frame.CaptureTimestamp()

	pos := 0
	for pos < len(samples) {
		if p.active == nil {
			if err := p.begin(); err != nil {
				return err
			}
			if cts != 0 {
				p.activeCTS = cts + int64(p.spec.SamplesPerChanToDuration(int64(pos/ch)))
			}
		}

		n := p.encoder.Write(samples[pos:])
		if n == 0 {
			break
		}
		pos += n * ch
		p.written += n

		if p.written == p.samplesPerPacket {
			if err := p.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush emits the partially filled packet, if any. Used at stream end.
func (p *Packetizer) Flush() error {
	if p.active == nil || p.written == 0 {
		return nil
	}
	return p.flush()
}

func (p *Packetizer) begin() error {
	pkt, err := p.packetPool.Acquire()
	if err != nil {
		return err
	}
	buf, err := p.bufferPool.Acquire()
	if err != nil {
		p.packetPool.Release(pkt)
		return err
	}

	p.active = pkt
	p.activeBuf = buf
	p.activeCTS = 0
	p.written = 0
	p.encoder.Begin(buf[:p.payloadSize])
	return nil
}

func (p *Packetizer) flush() error {
	payloadLen := p.encoder.End()
	duration := uint32(p.written)

	pkt := p.active
	pkt.AddFlags(packet.FlagRTP)
	pkt.RTP = &packet.RTP{
		SourceID:    p.sourceID,
		SeqNum:      p.seqnum,
		Timestamp:   p.timestamp,
		Duration:    duration,
		PayloadType: p.format.PayloadType,
		Payload:     p.activeBuf[:payloadLen],
		CaptureTS:   p.activeCTS,
	}

	p.active = nil
	p.activeBuf = nil
	p.lastCTS = p.activeCTS
	p.lastRTPTime = p.timestamp
	p.seqnum++
	p.timestamp += duration
	p.written = 0
	p.packetsTotal++
	p.bytesTotal += uint64(payloadLen)

	return p.writer.Write(pkt)
}
