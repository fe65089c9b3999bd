package rtcp

import (
	"fmt"
	"time"

	pionrtcp "github.com/pion/rtcp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/packet"
)

// SenderInfo is what a sender session reports about its media stream.
type SenderInfo struct {
	SourceID    uint32
	CaptureTS   int64  // Unix ns of the sample at RTPTimestamp, 0 if unknown
	RTPTime     uint32 // RTP timestamp paired with CaptureTS
	PacketCount uint32
	ByteCount   uint32
}

// ReceptionInfo is what a receiver session reports about one remote
// media stream.
type ReceptionInfo struct {
	RemoteSourceID uint32
	FractionLost   float32 // losses / expected over the last interval
	CumulativeLost uint32
	HighestSeqnum  uint32 // extended highest sequence number received
	Jitter         uint32 // interarrival jitter in RTP timestamp units
}

// SenderHooks feed a sender session the state of its media stream.
type SenderHooks interface {
	SenderInfo() SenderInfo
}

// ReceiverHooks connect a receiver session to its media pipeline.
type ReceiverHooks interface {
	// OnSenderReport delivers the NTP/RTP mapping of a received SR.
	OnSenderReport(remoteSourceID uint32, captureTS int64, rtpTS uint32)

	// ReceptionInfo returns the reception state of every tracked remote
	// stream.
	ReceptionInfo() []ReceptionInfo
}

// RemoteReport is the decoded view of a reception report block received
// from the remote end, exposed through sender metrics.
type RemoteReport struct {
	FractionLost   float32
	CumulativeLost uint32
	Jitter         uint32
}

// Config holds the session parameters.
type Config struct {
	// SourceID identifies the local end in emitted reports.
	SourceID uint32

	// CNAME is the canonical name carried in SDES chunks.
	CNAME string

	// ReportInterval is how often reports are emitted.
	ReportInterval time.Duration
}

// DefaultConfig returns the session parameters used when the caller does
// not override control tuning.
func DefaultConfig(sourceID uint32, cname string) Config {
	return Config{
		SourceID:       sourceID,
		CNAME:          cname,
		ReportInterval: time.Second,
	}
}

// Session emits and consumes RTCP compound packets for one slot.
//
// Exactly one of the hook sets is normally non-nil: a sender slot
// carries SenderHooks and consumes RRs, a receiver slot carries
// ReceiverHooks and consumes SRs. Advance drives report emission from
// the slot's refresh cycle; there is no internal timer.
type Session struct {
	config        Config
	senderHooks   SenderHooks
	receiverHooks ReceiverHooks
	out           packet.Writer

	nextReport int64 // Unix ns, 0 until first Advance

	lastRemote    RemoteReport
	hasLastRemote bool

	reportsSent     uint64
	reportsReceived uint64
	parseErrors     uint64
}

// NewSession creates a session writing compound packets to out.
func NewSession(config Config, out packet.Writer, sender SenderHooks, receiver ReceiverHooks) (*Session, error) {
	if config.ReportInterval <= 0 {
		return nil, fmt.Errorf("%w: report interval %v", ErrInvalidConfig, config.ReportInterval)
	}
	if config.CNAME == "" {
		return nil, fmt.Errorf("%w: empty cname", ErrInvalidConfig)
	}
	logrus.WithFields(logrus.Fields{
		"source_id":       config.SourceID,
		"cname":           config.CNAME,
		"report_interval": config.ReportInterval,
	}).Info("rtcp session: created")
	return &Session{
		config:        config,
		senderHooks:   sender,
		receiverHooks: receiver,
		out:           out,
	}, nil
}

// RemoteReport returns the latest reception report received from the
// remote end.
func (s *Session) RemoteReport() (RemoteReport, bool) {
	return s.lastRemote, s.hasLastRemote
}

// Stats returns the counts of reports sent, reports received, and parse
// failures.
func (s *Session) Stats() (sent, received, parseErrors uint64) {
	return s.reportsSent, s.reportsReceived, s.parseErrors
}

// ProcessPacket consumes one incoming control packet.
func (s *Session) ProcessPacket(p *packet.Packet) error {
	data := p.Data
	if p.RTCP != nil {
		data = p.RTCP.Payload
	}

	compound, err := pionrtcp.Unmarshal(data)
	if err != nil {
		s.parseErrors++
		logrus.WithFields(logrus.Fields{
			"size":  len(data),
			"error": err.Error(),
		}).Debug("rtcp session: failed to parse compound packet")
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for _, pkt := range compound {
		switch r := pkt.(type) {
		case *pionrtcp.SenderReport:
			s.handleSenderReport(r)
		case *pionrtcp.ReceiverReport:
			s.handleReceiverReport(r.Reports)
		}
	}
	return nil
}

func (s *Session) handleSenderReport(r *pionrtcp.SenderReport) {
	s.reportsReceived++
	if s.receiverHooks == nil {
		return
	}
	captureTS := packet.NTPToUnixNs(r.NTPTime)
	s.receiverHooks.OnSenderReport(r.SSRC, captureTS, r.RTPTime)
	logrus.WithFields(logrus.Fields{
		"remote_source": r.SSRC,
		"rtp_ts":        r.RTPTime,
	}).Debug("rtcp session: sender report received")

	s.handleReceiverReport(r.Reports)
}

func (s *Session) handleReceiverReport(reports []pionrtcp.ReceptionReport) {
	for _, rr := range reports {
		if rr.SSRC != s.config.SourceID {
			continue
		}
		s.reportsReceived++
		s.lastRemote = RemoteReport{
			FractionLost:   float32(rr.FractionLost) / 256,
			CumulativeLost: rr.TotalLost,
			Jitter:         rr.Jitter,
		}
		s.hasLastRemote = true
	}
}

// Advance emits a report when the interval has elapsed. now is Unix
// nanoseconds.
func (s *Session) Advance(now int64) error {
	if s.nextReport == 0 {
		s.nextReport = now + s.config.ReportInterval.Nanoseconds()
		return nil
	}
	if now < s.nextReport {
		return nil
	}
	for now >= s.nextReport {
		s.nextReport += s.config.ReportInterval.Nanoseconds()
	}
	return s.emitReport()
}

func (s *Session) emitReport() error {
	var compound []pionrtcp.Packet

	if s.senderHooks != nil {
		info := s.senderHooks.SenderInfo()
		compound = append(compound, &pionrtcp.SenderReport{
			SSRC:        s.config.SourceID,
			NTPTime:     packet.UnixNsToNTP(info.CaptureTS),
			RTPTime:     info.RTPTime,
			PacketCount: info.PacketCount,
			OctetCount:  info.ByteCount,
		})
	}

	if s.receiverHooks != nil {
		var blocks []pionrtcp.ReceptionReport
		for _, info := range s.receiverHooks.ReceptionInfo() {
			fraction := info.FractionLost * 256
			if fraction < 0 {
				fraction = 0
			}
			if fraction > 255 {
				fraction = 255
			}
			blocks = append(blocks, pionrtcp.ReceptionReport{
				SSRC:               info.RemoteSourceID,
				FractionLost:       uint8(fraction),
				TotalLost:          info.CumulativeLost,
				LastSequenceNumber: info.HighestSeqnum,
				Jitter:             info.Jitter,
			})
		}
		compound = append(compound, &pionrtcp.ReceiverReport{
			SSRC:    s.config.SourceID,
			Reports: blocks,
		})
	}

	compound = append(compound, &pionrtcp.SourceDescription{
		Chunks: []pionrtcp.SourceDescriptionChunk{{
			Source: s.config.SourceID,
			Items: []pionrtcp.SourceDescriptionItem{{
				Type: pionrtcp.SDESCNAME,
				Text: s.config.CNAME,
			}},
		}},
	})

	data, err := pionrtcp.Marshal(compound)
	if err != nil {
		return fmt.Errorf("failed to marshal rtcp compound: %w", err)
	}

	p := &packet.Packet{Data: data}
	p.AddFlags(packet.FlagControl | packet.FlagComposed)
	p.RTCP = &packet.RTCP{Payload: data}

	s.reportsSent++
	logrus.WithFields(logrus.Fields{
		"reports_sent": s.reportsSent,
	}).Debug("rtcp session: report emitted")
	return s.out.Write(p)
}
