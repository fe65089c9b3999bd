package rtp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
)

// TimestampInjector maps RTP timestamps to wall-clock capture timestamps
// using the NTP/RTP mapping learned from RTCP sender reports.
//
// Until the first mapping arrives, packets pass through with a zero
// (unknown) capture timestamp. Updates with a non-positive wall clock are
// ignored and counted. A packet arriving with a capture timestamp already
// set indicates an upstream invariant violation and panics.
type TimestampInjector struct {
	reader packet.Reader
	spec   audio.SampleSpec

	hasMapping bool
	captureTS  int64
	rtpTS      uint32

	ignoredUpdates uint64
}

// NewTimestampInjector creates an injector pulling from reader.
func NewTimestampInjector(reader packet.Reader, spec audio.SampleSpec) *TimestampInjector {
	return &TimestampInjector{
		reader: reader,
		spec:   spec,
	}
}

// UpdateMapping installs a new (wall clock, RTP timestamp) pair, normally
// taken from an RTCP sender report.
func (ti *TimestampInjector) UpdateMapping(captureTS int64, rtpTS uint32) {
	if captureTS <= 0 {
		ti.ignoredUpdates++
		logrus.WithFields(logrus.Fields{
			"capture_ts": captureTS,
			"ignored":    ti.ignoredUpdates,
		}).Debug("timestamp injector: ignoring non-positive mapping update")
		return
	}
	if !ti.hasMapping {
		logrus.WithFields(logrus.Fields{
			"capture_ts": captureTS,
			"rtp_ts":     rtpTS,
		}).Info("timestamp injector: first mapping installed")
	}
	ti.hasMapping = true
	ti.captureTS = captureTS
	ti.rtpTS = rtpTS
}

// IgnoredUpdates returns the number of rejected mapping updates.
func (ti *TimestampInjector) IgnoredUpdates() uint64 {
	return ti.ignoredUpdates
}

// Read returns the next packet with its capture timestamp filled in from
// the current mapping.
func (ti *TimestampInjector) Read() (*packet.Packet, error) {
	p, err := ti.reader.Read()
	if err != nil || p == nil {
		return p, err
	}
	if p.RTP != nil {
		if p.RTP.CaptureTS != 0 {
			panic(fmt.Sprintf("timestamp injector: packet seqnum=%d already has capture timestamp %d",
				p.RTP.SeqNum, p.RTP.CaptureTS))
		}
		if ti.hasMapping {
			delta := packet.TimestampDiff(p.RTP.Timestamp, ti.rtpTS)
			p.RTP.CaptureTS = ti.captureTS + int64(ti.spec.RTPDeltaToDuration(delta))
		}
	}
	return p, nil
}
