package rtp

import (
	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
)

// Populator fills derived RTP fields that are not part of the wire
// format. Currently this is the packet duration, computed from the
// payload size through the session's payload format.
type Populator struct {
	reader packet.Reader
	format *audio.Format
	spec   audio.SampleSpec
}

// NewPopulator creates a populator pulling from reader.
func NewPopulator(reader packet.Reader, format *audio.Format, spec audio.SampleSpec) *Populator {
	return &Populator{
		reader: reader,
		format: format,
		spec:   spec,
	}
}

// Read returns the next packet with its duration filled in.
func (pp *Populator) Read() (*packet.Packet, error) {
	p, err := pp.reader.Read()
	if err != nil || p == nil {
		return p, err
	}
	if p.RTP != nil && p.RTP.Duration == 0 {
		p.RTP.Duration = pp.format.PayloadDuration(len(p.RTP.Payload))
	}
	return p, nil
}
