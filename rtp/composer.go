package rtp

import (
	"fmt"

	pionrtp "github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/packet"
)

// Compose serializes a packet's RTP view into its byte slice and marks it
// composed. Once composed, the byte slice is authoritative and the views
// are read-only.
func Compose(p *packet.Packet) error {
	if p.RTP == nil {
		return ErrNotComposed
	}

	wire := pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			Marker:         p.RTP.Marker,
			PayloadType:    p.RTP.PayloadType,
			SequenceNumber: p.RTP.SeqNum,
			Timestamp:      p.RTP.Timestamp,
			SSRC:           p.RTP.SourceID,
		},
		Payload: p.RTP.Payload,
	}

	data, err := wire.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal rtp packet: %w", err)
	}

	p.Data = data
	p.AddFlags(packet.FlagComposed)
	return nil
}

// Parse fills a packet's RTP view from raw datagram bytes.
func Parse(p *packet.Packet, data []byte) error {
	var wire pionrtp.Packet
	if err := wire.Unmarshal(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"size":  len(data),
			"error": err.Error(),
		}).Debug("rtp: failed to parse packet")
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	p.Data = data
	p.RTP = &packet.RTP{
		SourceID:    wire.SSRC,
		SeqNum:      wire.SequenceNumber,
		Timestamp:   wire.Timestamp,
		Marker:      wire.Marker,
		PayloadType: wire.PayloadType,
		Payload:     wire.Payload,
	}
	p.AddFlags(packet.FlagRTP)
	return nil
}

// ComposeWriter is a pipeline stage that composes packets and forwards
// them downstream.
type ComposeWriter struct {
	out packet.Writer
}

// NewComposeWriter creates a composing stage in front of out.
func NewComposeWriter(out packet.Writer) *ComposeWriter {
	return &ComposeWriter{out: out}
}

// Write composes p and forwards it.
func (w *ComposeWriter) Write(p *packet.Packet) error {
	if err := Compose(p); err != nil {
		return err
	}
	return w.out.Write(p)
}
