package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flagSeqReader struct {
	flags []FrameFlags
	pos   int
}

func (r *flagSeqReader) Read(frame *Frame) error {
	if r.pos < len(r.flags) {
		frame.SetFlags(r.flags[r.pos])
		r.pos++
	}
	return nil
}

// 1 kHz mono keeps the sample math small: 1 ms is one sample.
var watchdogSpec = NewSampleSpec(1000, MonoChannelSet())

func repeatFlags(f FrameFlags, n int) []FrameFlags {
	flags := make([]FrameFlags, n)
	for i := range flags {
		flags[i] = f
	}
	return flags
}

func TestWatchdogNoPlaybackTimeout(t *testing.T) {
	reader := &flagSeqReader{flags: repeatFlags(0, 10)}
	w, err := NewWatchdog(reader, watchdogSpec, WatchdogConfig{
		NoPlaybackTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	frame := NewFrame(make([]float32, 5))

	require.NoError(t, w.Read(frame))
	assert.True(t, w.Alive())

	// The frame crossing the timeout is still delivered.
	require.NoError(t, w.Read(frame))
	assert.False(t, w.Alive())

	err = w.Read(frame)
	assert.ErrorIs(t, err, ErrStreamEnd)
}

func TestWatchdogNonblankKeepsAlive(t *testing.T) {
	reader := &flagSeqReader{flags: repeatFlags(FlagNonblank, 20)}
	w, err := NewWatchdog(reader, watchdogSpec, WatchdogConfig{
		NoPlaybackTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	frame := NewFrame(make([]float32, 5))
	for i := 0; i < 20; i++ {
		require.NoError(t, w.Read(frame))
		frame.ClearFlags()
	}
	assert.True(t, w.Alive())
}

func TestWatchdogChoppyPlaybackTimeout(t *testing.T) {
	choppy := FlagNonblank | FlagIncomplete | FlagDrops
	reader := &flagSeqReader{flags: repeatFlags(choppy, 10)}
	w, err := NewWatchdog(reader, watchdogSpec, WatchdogConfig{
		ChoppyPlaybackTimeout: 20 * time.Millisecond,
		ChoppyPlaybackWindow:  5 * time.Millisecond,
	})
	require.NoError(t, err)

	frame := NewFrame(make([]float32, 5))
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Read(frame))
		frame.ClearFlags()
		assert.True(t, w.Alive(), "read %d", i)
	}

	require.NoError(t, w.Read(frame))
	assert.False(t, w.Alive())
}

func TestWatchdogCleanWindowsResetChoppiness(t *testing.T) {
	choppy := FlagNonblank | FlagIncomplete | FlagDrops
	flags := []FrameFlags{choppy, choppy, FlagNonblank, choppy, choppy, FlagNonblank, choppy, choppy}
	reader := &flagSeqReader{flags: flags}
	w, err := NewWatchdog(reader, watchdogSpec, WatchdogConfig{
		ChoppyPlaybackTimeout: 15 * time.Millisecond,
		ChoppyPlaybackWindow:  5 * time.Millisecond,
	})
	require.NoError(t, err)

	frame := NewFrame(make([]float32, 5))
	for i := range flags {
		require.NoError(t, w.Read(frame))
		frame.ClearFlags()
		assert.True(t, w.Alive(), "read %d", i)
	}
}

func TestWatchdogDisabledChecks(t *testing.T) {
	reader := &flagSeqReader{flags: repeatFlags(0, 50)}
	w, err := NewWatchdog(reader, watchdogSpec, WatchdogConfig{})
	require.NoError(t, err)

	frame := NewFrame(make([]float32, 5))
	for i := 0; i < 50; i++ {
		require.NoError(t, w.Read(frame))
	}
	assert.True(t, w.Alive())
}

func TestWatchdogInvalidWindow(t *testing.T) {
	_, err := NewWatchdog(&flagSeqReader{}, watchdogSpec, WatchdogConfig{
		ChoppyPlaybackTimeout: 2 * time.Second,
		ChoppyPlaybackWindow:  0,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
