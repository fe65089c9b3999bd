package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutEmpty(t *testing.T) {
	fanout := NewFanout(NewSampleSpec(44100, StereoChannelSet()))

	frame := NewFrame([]float32{1, 2})
	assert.NoError(t, fanout.Write(frame))
}

func TestFanoutDuplicates(t *testing.T) {
	fanout := NewFanout(NewSampleSpec(44100, StereoChannelSet()))

	a := &collectWriter{}
	b := &collectWriter{}
	fanout.AddOutput(a)
	fanout.AddOutput(b)
	assert.Equal(t, 2, fanout.NumOutputs())

	frame := NewFrame([]float32{0.1, 0.2})
	require.NoError(t, fanout.Write(frame))

	assert.Equal(t, []float32{0.1, 0.2}, a.samples)
	assert.Equal(t, []float32{0.1, 0.2}, b.samples)
}

func TestFanoutFailureDoesNotShortCircuit(t *testing.T) {
	fanout := NewFanout(NewSampleSpec(44100, StereoChannelSet()))

	broken := errors.New("endpoint down")
	a := &collectWriter{err: broken}
	b := &collectWriter{}
	fanout.AddOutput(a)
	fanout.AddOutput(b)

	frame := NewFrame([]float32{0.1, 0.2})
	err := fanout.Write(frame)

	assert.ErrorIs(t, err, broken)
	assert.Equal(t, []float32{0.1, 0.2}, b.samples, "later outputs still receive the frame")
}

func TestFanoutRemoveOutput(t *testing.T) {
	fanout := NewFanout(NewSampleSpec(44100, StereoChannelSet()))

	a := &collectWriter{}
	b := &collectWriter{}
	fanout.AddOutput(a)
	fanout.AddOutput(b)
	fanout.RemoveOutput(a)
	assert.Equal(t, 1, fanout.NumOutputs())

	frame := NewFrame([]float32{0.5, 0.5})
	require.NoError(t, fanout.Write(frame))

	assert.Empty(t, a.samples)
	assert.Equal(t, []float32{0.5, 0.5}, b.samples)
}
