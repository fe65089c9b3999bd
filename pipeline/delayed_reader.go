package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
)

// DelayedReader gates a session's packet stream until enough audio has
// accumulated to cover the target latency.
//
// While gated it drains the upstream reader into its own sorted queue and
// reports an empty stream. Once the queued span reaches the delay it
// flushes the queue in order and becomes a transparent pass-through. The
// gate absorbs the initial burst of jitter so playback starts with a full
// buffer instead of stuttering through the ramp-up.
type DelayedReader struct {
	reader packet.Reader
	queue  *packet.SortedQueue

	delay   int64 // samples per channel
	started bool
}

// NewDelayedReader creates a gate over reader withholding output until
// delay worth of audio is queued.
func NewDelayedReader(reader packet.Reader, delay time.Duration, spec audio.SampleSpec) (*DelayedReader, error) {
	samples, err := spec.DurationToSamplesPerChan(delay)
	if err != nil || samples <= 0 {
		return nil, fmt.Errorf("%w: delay %v", ErrInvalidConfig, delay)
	}
	logrus.WithFields(logrus.Fields{
		"delay":         delay,
		"delay_samples": samples,
	}).Debug("delayed reader: created")
	return &DelayedReader{
		reader: reader,
		queue:  packet.NewSortedQueue(0),
		delay:  samples,
	}, nil
}

// Started reports whether the gate has opened.
func (dr *DelayedReader) Started() bool {
	return dr.started
}

// Read returns the next packet, or (nil, nil) while the gate is closed.
func (dr *DelayedReader) Read() (*packet.Packet, error) {
	if dr.started {
		if p, _ := dr.queue.Read(); p != nil {
			return p, nil
		}
		return dr.reader.Read()
	}

	if err := dr.fetch(); err != nil {
		return nil, err
	}

	span := dr.queuedSpan()
	if span < dr.delay {
		return nil, nil
	}

	dr.started = true
	logrus.WithFields(logrus.Fields{
		"queued_span":    span,
		"delay_samples":  dr.delay,
		"queued_packets": dr.queue.Len(),
	}).Info("delayed reader: gate opened")
	p, _ := dr.queue.Read()
	return p, nil
}

func (dr *DelayedReader) fetch() error {
	for {
		p, err := dr.reader.Read()
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}
		if err := dr.queue.Write(p); err != nil {
			return err
		}
	}
}

// queuedSpan is the stream time covered by the queue, from the head
// timestamp to the end of the tail packet.
func (dr *DelayedReader) queuedSpan() int64 {
	head := dr.queue.Head()
	tail := dr.queue.Tail()
	if head == nil || tail == nil {
		return 0
	}
	return packet.TimestampDiff(tail.RTP.Timestamp+tail.RTP.Duration, head.RTP.Timestamp)
}
