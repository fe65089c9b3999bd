package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/fec"
	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/rtcp"
	"github.com/opd-ai/streamkit/rtp"
)

// SenderSession is the outbound media chain of a sender slot: channel
// mapper, resampler, packetizer, optional FEC writer and interleaver,
// fanned out to the slot's endpoints.
type SenderSession struct {
	top audio.Writer

	packetizer  *audio.Packetizer
	fecWriter   *fec.Writer
	interleaver *packet.Interleaver

	control *rtcp.Session
}

// NewSenderSession builds the chain emitting composed source packets to
// sourceOut and, with a FEC scheme, parity packets to repairOut.
func NewSenderSession(
	config SenderConfig,
	format *audio.Format,
	scheme packet.FECScheme,
	sourceOut, repairOut packet.Writer,
) (*SenderSession, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if format.NewEncoder == nil {
		return nil, fmt.Errorf("%w: payload type %d has no encoder", ErrInvalidConfig, format.PayloadType)
	}
	if scheme != packet.FECSchemeNone && repairOut == nil {
		return nil, fmt.Errorf("%w: fec scheme %s without repair endpoint", ErrInvalidConfig, scheme)
	}

	packetSpec := format.Spec
	samplesPerPacket, err := packetSpec.DurationToSamplesPerChan(config.PacketLength)
	if err != nil || samplesPerPacket <= 0 {
		return nil, fmt.Errorf("%w: packet length %v at %d Hz", ErrInvalidConfig, config.PacketLength, packetSpec.SampleRate())
	}
	payloadSize := format.PayloadSize(int(samplesPerPacket))
	if payloadSize == 0 || fec.PayloadHeaderSize+payloadSize > config.MaxPacketSize {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds max packet size %d",
			ErrInvalidConfig, payloadSize, config.MaxPacketSize)
	}

	s := &SenderSession{}

	var packetOut packet.Writer
	if scheme != packet.FECSchemeNone {
		fecConfig := config.FEC
		fecConfig.Scheme = scheme

		if config.EnableInterleaving {
			router := packet.NewRouter()
			router.AddRoute(repairOut, packet.FlagRTP|packet.FlagRepair)
			router.AddRoute(sourceOut, packet.FlagRTP)
			s.interleaver = packet.NewInterleaver(router)
			sourceOut, repairOut = s.interleaver, s.interleaver
		}

		fecWriter, err := fec.NewWriter(fecConfig, sourceOut, repairOut)
		if err != nil {
			return nil, err
		}
		s.fecWriter = fecWriter
		packetOut = fecWriter
	} else {
		packetOut = rtp.NewComposeWriter(sourceOut)
	}

	packetPool := packet.NewPacketPool(defaultPoolPackets)
	bufferPool := packet.NewBufferPool(defaultPoolPackets, config.MaxPacketSize)

	s.packetizer = audio.NewPacketizer(
		packetOut, packetPool, bufferPool, format, packetSpec, int(samplesPerPacket))

	var frames audio.Writer = s.packetizer

	if config.SampleSpec.SampleRate() != packetSpec.SampleRate() {
		resampler, err := audio.NewResampler(packetSpec, config.ResamplerProfile)
		if err != nil {
			return nil, err
		}
		inSpec := audio.NewSampleSpec(config.SampleSpec.SampleRate(), packetSpec.ChannelSet())
		rw, err := audio.NewResamplerWriter(frames, resampler, inSpec, packetSpec)
		if err != nil {
			return nil, err
		}
		frames = rw
	}

	if !config.SampleSpec.ChannelSet().Equal(packetSpec.ChannelSet()) {
		inSpec := audio.NewSampleSpec(config.SampleSpec.SampleRate(), config.SampleSpec.ChannelSet())
		outSpec := audio.NewSampleSpec(config.SampleSpec.SampleRate(), packetSpec.ChannelSet())
		mapper, err := audio.NewMapperWriter(frames, inSpec, outSpec)
		if err != nil {
			return nil, err
		}
		frames = mapper
	}

	s.top = frames

	logrus.WithFields(logrus.Fields{
		"payload_type":       format.PayloadType,
		"input_spec":         config.SampleSpec.String(),
		"packet_spec":        packetSpec.String(),
		"fec_scheme":         scheme.String(),
		"samples_per_packet": samplesPerPacket,
		"interleaving":       s.interleaver != nil,
	}).Info("sender session: created")
	return s, nil
}

// EnableControl creates the session's RTCP side writing compound packets
// to out.
func (s *SenderSession) EnableControl(config rtcp.Config, out packet.Writer) error {
	if config.SourceID == 0 {
		config.SourceID = s.packetizer.SourceID()
	}
	control, err := rtcp.NewSession(config, out, s, nil)
	if err != nil {
		return err
	}
	s.control = control
	return nil
}

// Write consumes one frame of audio.
func (s *SenderSession) Write(frame *audio.Frame) error {
	return s.top.Write(frame)
}

// Flush emits any partially filled packet and drains the interleaver.
// Used at stream end.
func (s *SenderSession) Flush() error {
	if err := s.packetizer.Flush(); err != nil {
		return err
	}
	if s.interleaver != nil {
		return s.interleaver.Flush()
	}
	return nil
}

// Refresh advances the control session. now is Unix nanoseconds.
func (s *SenderSession) Refresh(now int64) error {
	if s.control == nil {
		return nil
	}
	return s.control.Advance(now)
}

// ProcessControl consumes one inbound control packet.
func (s *SenderSession) ProcessControl(p *packet.Packet) error {
	if s.control == nil {
		return nil
	}
	return s.control.ProcessPacket(p)
}

// SourceID returns the RTP source id of the emitted stream.
func (s *SenderSession) SourceID() uint32 {
	return s.packetizer.SourceID()
}

// SenderInfo reports the media stream state for sender reports.
func (s *SenderSession) SenderInfo() rtcp.SenderInfo {
	captureTS, rtpTime := s.packetizer.Mapping()
	return rtcp.SenderInfo{
		SourceID:    s.packetizer.SourceID(),
		CaptureTS:   captureTS,
		RTPTime:     rtpTime,
		PacketCount: uint32(s.packetizer.PacketsEmitted()),
		ByteCount:   uint32(s.packetizer.BytesEmitted()),
	}
}

// Metrics returns the session counters exposed through slot metrics.
func (s *SenderSession) Metrics() SenderSlotMetrics {
	m := SenderSlotMetrics{
		SourceID:       s.packetizer.SourceID(),
		PacketsEmitted: s.packetizer.PacketsEmitted(),
	}
	if s.control != nil {
		m.Control.ReportsSent, m.Control.ReportsReceived, m.Control.ParseErrors = s.control.Stats()
		m.RemoteReport, m.HasRemoteReport = s.control.RemoteReport()
	}
	return m
}
