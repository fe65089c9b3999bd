package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMandatoryFormats(t *testing.T) {
	registry := NewRegistry()

	mono, err := registry.Lookup(PayloadTypeL16Mono)
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), mono.Spec.SampleRate())
	assert.Equal(t, 1, mono.Spec.NumChannels())

	stereo, err := registry.Lookup(PayloadTypeL16Stereo)
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), stereo.Spec.SampleRate())
	assert.Equal(t, 2, stereo.Spec.NumChannels())
}

func TestRegistryUnknownFormat(t *testing.T) {
	_, err := NewRegistry().Lookup(96)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRegistryDuplicateRejected(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(NewPCMFormat(PayloadTypeL16Mono,
		NewSampleSpec(8000, MonoChannelSet())))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegistryMultitrack(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.RegisterMultitrack(96, 48000, 4))

	f, err := registry.Lookup(96)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), f.Spec.SampleRate())
	assert.Equal(t, 4, f.Spec.NumChannels())
	assert.Equal(t, ChannelLayoutMultitrack, f.Spec.ChannelSet().Layout())
}

func TestRegistryMultitrackInvalidTracks(t *testing.T) {
	registry := NewRegistry()

	assert.ErrorIs(t, registry.RegisterMultitrack(96, 48000, 0), ErrInvalidArgument)
	assert.ErrorIs(t, registry.RegisterMultitrack(96, 48000, -1), ErrInvalidArgument)
	assert.ErrorIs(t, registry.RegisterMultitrack(96, 48000, maxChannels+1), ErrInvalidArgument)
}

func TestRegistryConcurrentLookup(t *testing.T) {
	registry := NewRegistry()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_, _ = registry.Lookup(PayloadTypeL16Stereo)
		}
	}()
	for i := 0; i < 100; i++ {
		_ = registry.RegisterMultitrack(uint8(96+i%32), 48000, 2)
	}
	<-done
}
