package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/fec"
	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/rtcp"
	"github.com/opd-ai/streamkit/rtp"
)

// ReceiverSession is the per-sender media chain of a receiver slot.
//
// Incoming packets are routed into the source (and, with FEC, repair)
// jitter queues; frames are pulled from the top of the chain into the
// slot mixer. The chain is, bottom to top: jitter queues, FEC reader,
// validator, populator, delayed reader, timestamp injector,
// depacketizer, watchdog, channel mapper, resampler with latency
// monitor.
type ReceiverSession struct {
	router *packet.Router

	srcQueue    *packet.SortedQueue
	repairQueue *packet.SortedQueue

	validator    *rtp.Validator
	delayed      *DelayedReader
	injector     *rtp.TimestampInjector
	depacketizer *audio.Depacketizer
	watchdog     *audio.Watchdog
	monitor      *audio.LatencyMonitor
	fecReader    *fec.Reader

	spec     audio.SampleSpec
	sourceID uint32

	// reception accounting for RTCP receiver reports
	firstSeq   uint16
	highestExt uint32
	seqStarted bool
	received   uint64
	lastExp    uint64
	lastRecv   uint64
	routeNow   int64
	hasTransit bool
	lastTrans  int64
	jitter     float64
}

// fecParseWriter parses the block header off every packet before it
// enters a jitter queue.
type fecParseWriter struct {
	out    packet.Writer
	scheme packet.FECScheme
}

func (w *fecParseWriter) Write(p *packet.Packet) error {
	if err := fec.ParsePacket(p, w.scheme); err != nil {
		return err
	}
	return w.out.Write(p)
}

// routeTap counts a session's received media packets on their way into
// the source queue.
type routeTap struct {
	out     packet.Writer
	session *ReceiverSession
}

func (t *routeTap) Write(p *packet.Packet) error {
	t.session.account(p)
	return t.out.Write(p)
}

// NewReceiverSession builds the chain for one remote sender. format is
// the payload format of the stream, scheme the FEC arithmetic of the
// slot's endpoints (FECSchemeNone for a plain source endpoint).
func NewReceiverSession(config ReceiverConfig, format *audio.Format, scheme packet.FECScheme) (*ReceiverSession, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if format.NewDecoder == nil {
		return nil, fmt.Errorf("%w: payload type %d has no decoder", ErrInvalidConfig, format.PayloadType)
	}

	s := &ReceiverSession{
		srcQueue: packet.NewSortedQueue(0),
		spec:     format.Spec,
	}

	var srcTap packet.Writer = &routeTap{out: s.srcQueue, session: s}

	s.router = packet.NewRouter()
	var chain packet.Reader = s.srcQueue

	if scheme != packet.FECSchemeNone {
		s.repairQueue = packet.NewSortedQueue(0)

		fecConfig := config.FEC
		fecConfig.Scheme = scheme
		fecReader, err := fec.NewReader(fecConfig, s.srcQueue, s.repairQueue)
		if err != nil {
			return nil, err
		}
		s.fecReader = fecReader
		chain = fecReader

		srcTap = &fecParseWriter{out: srcTap, scheme: scheme}
		s.router.AddRoute(&fecParseWriter{out: s.repairQueue, scheme: scheme}, packet.FlagRTP|packet.FlagRepair)
	}
	s.router.AddRoute(srcTap, packet.FlagRTP)

	formatSpec := format.Spec

	s.validator = rtp.NewValidator(chain, config.Validator, formatSpec)

	populator := rtp.NewPopulator(s.validator, format, formatSpec)

	delayed, err := NewDelayedReader(populator, config.TargetLatency, formatSpec)
	if err != nil {
		return nil, err
	}
	s.delayed = delayed

	s.injector = rtp.NewTimestampInjector(delayed, formatSpec)

	s.depacketizer = audio.NewDepacketizer(s.injector, format.NewDecoder(), formatSpec, config.Beep)

	watchdog, err := audio.NewWatchdog(s.depacketizer, formatSpec, config.Watchdog)
	if err != nil {
		return nil, err
	}
	s.watchdog = watchdog

	var frames audio.Reader = watchdog

	mappedSpec := audio.NewSampleSpec(formatSpec.SampleRate(), config.SampleSpec.ChannelSet())
	if !formatSpec.ChannelSet().Equal(config.SampleSpec.ChannelSet()) {
		mapper, err := audio.NewMapperReader(frames, formatSpec, mappedSpec)
		if err != nil {
			return nil, err
		}
		frames = mapper
	}

	resampler, err := audio.NewResampler(config.SampleSpec, config.ResamplerProfile)
	if err != nil {
		return nil, err
	}
	rr, err := audio.NewResamplerReader(frames, resampler, mappedSpec, config.SampleSpec)
	if err != nil {
		return nil, err
	}

	s.monitor, err = audio.NewLatencyMonitor(
		rr, s.srcQueue, s.depacketizer, rr,
		config.Latency, config.TargetLatency, formatSpec)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payload_type":   format.PayloadType,
		"stream_spec":    formatSpec.String(),
		"output_spec":    config.SampleSpec.String(),
		"fec_scheme":     scheme.String(),
		"target_latency": config.TargetLatency,
	}).Info("receiver session: created")
	return s, nil
}

// Route delivers one incoming media packet to the session. now is the
// arrival wall clock in Unix nanoseconds, used for jitter accounting.
func (s *ReceiverSession) Route(p *packet.Packet, now int64) error {
	s.routeNow = now
	return s.router.Write(p)
}

// Read pulls one frame of session audio.
func (s *ReceiverSession) Read(frame *audio.Frame) error {
	return s.monitor.Read(frame)
}

// Alive reports whether the session should keep running.
func (s *ReceiverSession) Alive() bool {
	return s.watchdog.Alive() && s.monitor.Alive()
}

// SourceID returns the remote RTP source id, valid once the first media
// packet arrived.
func (s *ReceiverSession) SourceID() (uint32, bool) {
	return s.router.SourceID(packet.FlagRTP)
}

// Reclock passes the playback wall-clock time of the last delivered frame
// to the latency monitor.
func (s *ReceiverSession) Reclock(playbackTS int64) {
	s.monitor.Reclock(playbackTS)
}

// OnSenderReport installs the NTP/RTP mapping of a received sender
// report.
func (s *ReceiverSession) OnSenderReport(captureTS int64, rtpTS uint32) {
	s.injector.UpdateMapping(captureTS, rtpTS)
}

// account tracks reception state per RFC 3550 appendix A on every packet
// entering the source queue.
func (s *ReceiverSession) account(p *packet.Packet) {
	if p.RTP == nil {
		return
	}
	s.sourceID = p.RTP.SourceID
	seq := p.RTP.SeqNum

	if s.routeNow > 0 {
		arrival := s.spec.DurationToRTPDelta(time.Duration(s.routeNow))
		transit := arrival - int64(p.RTP.Timestamp)
		if s.hasTransit {
			d := transit - s.lastTrans
			if d < 0 {
				d = -d
			}
			s.jitter += (float64(d) - s.jitter) / 16
		}
		s.hasTransit = true
		s.lastTrans = transit
	}

	if !s.seqStarted {
		s.seqStarted = true
		s.firstSeq = seq
		s.highestExt = uint32(seq)
		s.received = 1
		return
	}
	s.received++

	ext := (s.highestExt &^ 0xffff) | uint32(seq)
	switch d := packet.SeqnumDiff(seq, uint16(s.highestExt)); {
	case d > 0 && seq < uint16(s.highestExt):
		ext += 1 << 16 // wrapped forward
	case d < 0 && seq > uint16(s.highestExt):
		ext -= 1 << 16 // straggler from before the wrap
	}
	if ext > s.highestExt {
		s.highestExt = ext
	}
}

// ReceptionInfo returns this session's reception report block state. The
// loss fraction covers the interval since the previous call.
func (s *ReceiverSession) ReceptionInfo() rtcp.ReceptionInfo {
	if !s.seqStarted {
		return rtcp.ReceptionInfo{RemoteSourceID: s.sourceID}
	}

	expected := uint64(s.highestExt-uint32(s.firstSeq)) + 1
	var lost uint64
	if expected > s.received {
		lost = expected - s.received
	}

	var fraction float32
	expInterval := expected - s.lastExp
	recvInterval := s.received - s.lastRecv
	if expInterval > recvInterval && expInterval > 0 {
		fraction = float32(expInterval-recvInterval) / float32(expInterval)
	}
	s.lastExp = expected
	s.lastRecv = s.received

	return rtcp.ReceptionInfo{
		RemoteSourceID: s.sourceID,
		FractionLost:   fraction,
		CumulativeLost: uint32(lost),
		HighestSeqnum:  s.highestExt,
		Jitter:         uint32(s.jitter),
	}
}

// Metrics returns the session counters exposed through slot metrics.
func (s *ReceiverSession) Metrics() SessionMetrics {
	m := SessionMetrics{
		SourceID: s.sourceID,
		Alive:    s.Alive(),
		Started:  s.delayed.Started(),
		Latency:  s.monitor.Metrics(),
	}
	m.QueuedPackets = s.srcQueue.Len()
	m.LateDropped, m.DuplicateDropped, _ = s.srcQueue.Dropped()
	m.ValidatorDropped = s.validator.Dropped()
	m.Decoded, m.Missing, m.DroppedPackets = s.depacketizer.Stats()
	if s.fecReader != nil {
		m.FECRecovered, m.FECFailedBlocks, m.FECLateDropped = s.fecReader.Stats()
	}
	return m
}
