package audio

import (
	"fmt"
	"math"
	"time"
)

// SampleSpec describes a PCM stream: sample rate in Hertz plus a channel
// set. A spec is immutable once constructed.
//
// The conversion methods translate between durations, per-channel sample
// counts, overall (interleaved) sample counts and RTP timestamp deltas.
// All conversions round half-away-from-zero and saturate to the extremes
// of the destination type instead of overflowing.
type SampleSpec struct {
	rate     uint32
	channels ChannelSet
}

// NewSampleSpec creates a sample spec from a rate and channel set.
func NewSampleSpec(rate uint32, channels ChannelSet) SampleSpec {
	return SampleSpec{rate: rate, channels: channels}
}

// IsValid reports whether the spec has a non-zero rate and a valid,
// non-empty channel set.
func (s SampleSpec) IsValid() bool {
	return s.rate > 0 && s.channels.IsValid() && s.channels.NumChannels() > 0
}

// SampleRate returns the sample rate in Hertz.
func (s SampleSpec) SampleRate() uint32 {
	return s.rate
}

// ChannelSet returns the channel set.
func (s SampleSpec) ChannelSet() ChannelSet {
	return s.channels
}

// NumChannels returns the number of channels.
func (s SampleSpec) NumChannels() int {
	return s.channels.NumChannels()
}

// Equal reports whether two specs are identical.
func (s SampleSpec) Equal(other SampleSpec) bool {
	return s.rate == other.rate && s.channels.Equal(other.channels)
}

// String returns a form like "44100Hz surround:0x3".
func (s SampleSpec) String() string {
	return fmt.Sprintf("%dHz %s", s.rate, s.channels)
}

// DurationToSamplesPerChan converts a duration to a per-channel sample
// count. Negative durations are rejected.
func (s SampleSpec) DurationToSamplesPerChan(d time.Duration) (int64, error) {
	if d < 0 {
		return 0, fmt.Errorf("%w: negative duration %v", ErrInvalidArgument, d)
	}
	return roundSaturate(float64(d) / float64(time.Second) * float64(s.rate)), nil
}

// SamplesPerChanToDuration converts a per-channel sample count to a
// duration, saturating on overflow.
func (s SampleSpec) SamplesPerChanToDuration(n int64) time.Duration {
	return time.Duration(roundSaturate(float64(n) / float64(s.rate) * float64(time.Second)))
}

// DurationToSamplesOverall converts a duration to an overall sample count
// (per-channel count times channel count). Negative durations are
// rejected. On saturation the extreme is rounded down to a multiple of
// the channel count so the divisibility invariant holds.
func (s SampleSpec) DurationToSamplesOverall(d time.Duration) (int64, error) {
	perChan, err := s.DurationToSamplesPerChan(d)
	if err != nil {
		return 0, err
	}
	ch := int64(s.NumChannels())
	if perChan > math.MaxInt64/ch {
		extreme := int64(math.MaxInt64)
		return extreme - extreme%ch, nil
	}
	return perChan * ch, nil
}

// SamplesOverallToDuration converts an overall sample count to a duration.
// The count must be a non-negative multiple of the channel count.
func (s SampleSpec) SamplesOverallToDuration(n int64) (time.Duration, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: negative sample count %d", ErrInvalidArgument, n)
	}
	ch := int64(s.NumChannels())
	if n%ch != 0 {
		return 0, fmt.Errorf("%w: overall sample count %d not a multiple of %d channels",
			ErrInvalidArgument, n, ch)
	}
	return s.SamplesPerChanToDuration(n / ch), nil
}

// DurationToRTPDelta converts a signed duration to an RTP timestamp delta
// in stream clock units, saturating on overflow.
func (s SampleSpec) DurationToRTPDelta(d time.Duration) int64 {
	return roundSaturate(float64(d) / float64(time.Second) * float64(s.rate))
}

// RTPDeltaToDuration converts a signed RTP timestamp delta to a duration,
// saturating on overflow.
func (s SampleSpec) RTPDeltaToDuration(delta int64) time.Duration {
	return time.Duration(roundSaturate(float64(delta) / float64(s.rate) * float64(time.Second)))
}

// roundSaturate rounds half-away-from-zero and clamps to int64 range.
func roundSaturate(v float64) int64 {
	if v >= 0 {
		v += 0.5
	} else {
		v -= 0.5
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}
