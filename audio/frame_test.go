package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameFlags(t *testing.T) {
	frame := NewFrame(make([]float32, 4))

	assert.Equal(t, FrameFlags(0), frame.Flags())
	assert.False(t, frame.HasFlags(FlagNonblank))

	frame.SetFlags(FlagNonblank)
	frame.SetFlags(FlagDrops)

	assert.True(t, frame.HasFlags(FlagNonblank))
	assert.True(t, frame.HasFlags(FlagDrops))
	assert.True(t, frame.HasFlags(FlagNonblank|FlagDrops))
	assert.False(t, frame.HasFlags(FlagIncomplete))
	assert.False(t, frame.HasFlags(FlagNonblank|FlagIncomplete))

	frame.ClearFlags()
	assert.Equal(t, FrameFlags(0), frame.Flags())
}

func TestFrameCaptureTimestamp(t *testing.T) {
	frame := NewFrame(nil)

	assert.Zero(t, frame.CaptureTimestamp())
	frame.SetCaptureTimestamp(123456789)
	assert.Equal(t, int64(123456789), frame.CaptureTimestamp())
}

func TestFrameSamples(t *testing.T) {
	samples := []float32{1, 2, 3, 4}
	frame := NewFrame(samples)

	assert.Equal(t, samples, frame.Samples())

	replacement := []float32{5, 6}
	frame.SetSamples(replacement)
	assert.Equal(t, replacement, frame.Samples())
}

func TestCheckFrame(t *testing.T) {
	stereo := NewSampleSpec(44100, StereoChannelSet())

	assert.NotPanics(t, func() {
		CheckFrame(NewFrame(make([]float32, 4)), stereo)
	})
	assert.NotPanics(t, func() {
		CheckFrame(NewFrame(nil), stereo)
	})
	assert.Panics(t, func() {
		CheckFrame(NewFrame(make([]float32, 3)), stereo)
	})
	assert.Panics(t, func() {
		CheckFrame(NewFrame(make([]float32, 2)), SampleSpec{})
	})
}
