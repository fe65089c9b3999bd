package audio

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/packet"
)

// LatencyMonitorConfig holds the tunables of the latency control loop.
type LatencyMonitorConfig struct {
	// FEEnable turns the frequency estimator and resampler scaling on.
	FEEnable bool

	// FEProfile selects the estimator preset.
	FEProfile FreqEstimatorProfile

	// FEUpdateInterval is how often the estimator is fed, in stream
	// time. Small-frame pipelines are rate-limited to this interval.
	FEUpdateInterval time.Duration

	// MinLatency and MaxLatency bound the allowed niq latency. An
	// excursion beyond them breaks the session.
	MinLatency time.Duration
	MaxLatency time.Duration

	// MaxScalingDelta clamps the scaling coefficient to
	// [1-delta, 1+delta].
	MaxScalingDelta float32
}

// DefaultLatencyMonitorConfig returns the config used when the caller
// does not override latency tuning.
func DefaultLatencyMonitorConfig(targetLatency time.Duration) LatencyMonitorConfig {
	return LatencyMonitorConfig{
		FEEnable:         true,
		FEProfile:        FreqEstimatorGradual,
		FEUpdateInterval: 5 * time.Millisecond,
		MinLatency:       -targetLatency,
		MaxLatency:       targetLatency * 2,
		MaxScalingDelta:  0.005,
	}
}

// LatencyMonitorMetrics is a snapshot of the measured latencies.
type LatencyMonitorMetrics struct {
	NiqLatency time.Duration
	E2eLatency time.Duration
}

const latencyReportInterval = 5 * time.Second

// LatencyMonitor wraps a frame reader with a closed control loop that
// keeps the jitter-queue latency near a target.
//
// Before every read it measures the niq latency (the distance between
// the depacketizer's stream position and the newest queued packet),
// checks it against the configured bounds, and feeds it to a frequency
// estimator whose output coefficient scales the resampler. An excursion
// beyond the bounds marks the monitor dead; subsequent reads return
// ErrSessionBroken.
type LatencyMonitor struct {
	reader       Reader
	queue        *packet.SortedQueue
	depacketizer *Depacketizer
	resampler    *ResamplerReader

	config LatencyMonitorConfig
	spec   SampleSpec

	fe *FreqEstimator

	targetLatency int64 // per-channel samples
	minLatency    int64
	maxLatency    int64

	streamPos      uint64
	updateInterval uint64
	updatePos      uint64
	reportInterval uint64
	reportPos      uint64

	niqLatency    int64
	e2eLatency    int64
	hasNiqLatency bool
	lastCTS       int64

	freqCoeff float32
	alive     bool
}

// NewLatencyMonitor creates a monitor around reader. The resampler may be
// nil only when scaling is disabled in the config.
func NewLatencyMonitor(
	reader Reader,
	queue *packet.SortedQueue,
	depacketizer *Depacketizer,
	resampler *ResamplerReader,
	config LatencyMonitorConfig,
	targetLatency time.Duration,
	spec SampleSpec,
) (*LatencyMonitor, error) {
	if targetLatency <= 0 || targetLatency < config.MinLatency || targetLatency > config.MaxLatency {
		return nil, fmt.Errorf("%w: target latency %v outside [%v, %v]",
			ErrInvalidArgument, targetLatency, config.MinLatency, config.MaxLatency)
	}

	target, err := spec.DurationToSamplesPerChan(targetLatency)
	if err != nil {
		return nil, err
	}

	lm := &LatencyMonitor{
		reader:        reader,
		queue:         queue,
		depacketizer:  depacketizer,
		resampler:     resampler,
		config:        config,
		spec:          spec,
		targetLatency: target,
		minLatency:    spec.DurationToRTPDelta(config.MinLatency),
		maxLatency:    spec.DurationToRTPDelta(config.MaxLatency),
		alive:         true,
	}

	if config.FEEnable {
		if resampler == nil {
			panic("latency monitor: scaling enabled without resampler")
		}
		if config.FEUpdateInterval <= 0 {
			return nil, fmt.Errorf("%w: fe update interval %v", ErrInvalidArgument, config.FEUpdateInterval)
		}
		lm.updateInterval = uint64(spec.DurationToRTPDelta(config.FEUpdateInterval))

		lm.fe, err = NewFreqEstimator(config.FEProfile, uint32(target))
		if err != nil {
			return nil, err
		}
		if !resampler.SetScaling(1) {
			return nil, fmt.Errorf("%w: initial scaling rejected", ErrInvalidArgument)
		}
	}

	lm.reportInterval = uint64(spec.DurationToRTPDelta(latencyReportInterval))

	logrus.WithFields(logrus.Fields{
		"target_latency": targetLatency,
		"min_latency":    config.MinLatency,
		"max_latency":    config.MaxLatency,
		"fe_enable":      config.FEEnable,
		"fe_profile":     config.FEProfile.String(),
	}).Debug("latency monitor: created")
	return lm, nil
}

// Alive reports whether the latency has stayed within bounds.
func (lm *LatencyMonitor) Alive() bool {
	return lm.alive
}

// Metrics returns the last measured latencies.
func (lm *LatencyMonitor) Metrics() LatencyMonitorMetrics {
	return LatencyMonitorMetrics{
		NiqLatency: lm.spec.RTPDeltaToDuration(lm.niqLatency),
		E2eLatency: lm.spec.RTPDeltaToDuration(lm.e2eLatency),
	}
}

// Read measures latency, runs the control loop and pulls the next frame.
func (lm *LatencyMonitor) Read(frame *Frame) error {
	CheckFrame(frame, lm.spec)

	lm.computeNiqLatency()

	if !lm.update() {
		return fmt.Errorf("%w: latency out of bounds", ErrSessionBroken)
	}

	if err := lm.reader.Read(frame); err != nil {
		return err
	}

	lm.streamPos += uint64(len(frame.Samples()) / lm.spec.NumChannels())
	lm.lastCTS = frame.CaptureTimestamp()

	lm.report()
	return nil
}

// Reclock reports the playback time of the last read frame, updating the
// end-to-end latency estimate.
func (lm *LatencyMonitor) Reclock(playbackTS int64) {
	if playbackTS < 0 {
		panic("latency monitor: negative playback timestamp")
	}
	if lm.lastCTS == 0 {
		return
	}
	lm.e2eLatency = lm.spec.DurationToRTPDelta(time.Duration(playbackTS - lm.lastCTS))
}

func (lm *LatencyMonitor) computeNiqLatency() {
	if !lm.depacketizer.Started() {
		return
	}
	tail := lm.queue.Tail()
	if tail == nil || tail.RTP == nil {
		return
	}
	head := lm.depacketizer.Timestamp()
	end := tail.RTP.Timestamp + tail.RTP.Duration
	lm.niqLatency = packet.TimestampDiff(end, head)
	lm.hasNiqLatency = true
}

func (lm *LatencyMonitor) update() bool {
	if !lm.alive {
		return false
	}
	if !lm.hasNiqLatency {
		return true
	}

	if lm.niqLatency < lm.minLatency || lm.niqLatency > lm.maxLatency {
		logrus.WithFields(logrus.Fields{
			"niq_latency": lm.spec.RTPDeltaToDuration(lm.niqLatency),
			"min_latency": lm.config.MinLatency,
			"max_latency": lm.config.MaxLatency,
		}).Warn("latency monitor: latency out of bounds, session broken")
		lm.alive = false
		return false
	}

	if lm.fe != nil && !lm.updateScaling() {
		lm.alive = false
		return false
	}
	return true
}

func (lm *LatencyMonitor) updateScaling() bool {
	latency := lm.niqLatency
	if latency < 0 {
		latency = 0
	}

	if lm.streamPos < lm.updatePos {
		return true
	}
	for lm.streamPos >= lm.updatePos {
		lm.fe.Update(uint32(latency))
		lm.updatePos += lm.updateInterval
	}

	coeff := lm.fe.FreqCoeff()
	if max := 1 + lm.config.MaxScalingDelta; coeff > max {
		coeff = max
	}
	if min := 1 - lm.config.MaxScalingDelta; coeff < min {
		coeff = min
	}
	lm.freqCoeff = coeff

	if !lm.resampler.SetScaling(coeff) {
		logrus.WithFields(logrus.Fields{
			"fe_coeff":   lm.fe.FreqCoeff(),
			"trim_coeff": coeff,
		}).Warn("latency monitor: scaling rejected by resampler")
		return false
	}
	return true
}

func (lm *LatencyMonitor) report() {
	if !lm.hasNiqLatency || lm.streamPos < lm.reportPos {
		return
	}
	for lm.streamPos >= lm.reportPos {
		lm.reportPos += lm.reportInterval
	}
	logrus.WithFields(logrus.Fields{
		"niq_latency":    lm.spec.RTPDeltaToDuration(lm.niqLatency),
		"e2e_latency":    lm.spec.RTPDeltaToDuration(lm.e2eLatency),
		"target_latency": lm.spec.RTPDeltaToDuration(lm.targetLatency),
		"freq_coeff":     lm.freqCoeff,
	}).Debug("latency monitor: report")
}
