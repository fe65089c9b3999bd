package audio

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// WatchdogConfig holds the session-liveness timeouts.
type WatchdogConfig struct {
	// NoPlaybackTimeout is the maximum period during which every frame
	// is blank before the session is declared dead. Zero disables the
	// check.
	NoPlaybackTimeout time.Duration

	// ChoppyPlaybackTimeout is the maximum period during which every
	// drop-detection window contains both an incomplete frame and a
	// frame that caused packet drops. Zero disables the check.
	ChoppyPlaybackTimeout time.Duration

	// ChoppyPlaybackWindow is the drop-detection window size.
	ChoppyPlaybackWindow time.Duration

	// FrameStatusWindow is the number of frames per status log line.
	// Zero disables status logging.
	FrameStatusWindow int
}

// DefaultWatchdogConfig returns the default timeouts.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		NoPlaybackTimeout:     2 * time.Second,
		ChoppyPlaybackTimeout: 2 * time.Second,
		ChoppyPlaybackWindow:  300 * time.Millisecond,
		FrameStatusWindow:     20,
	}
}

// Watchdog wraps a frame reader and terminates the session when the
// stream looks dead (nothing but blank frames for NoPlaybackTimeout) or
// corrupted (uninterrupted stutter for ChoppyPlaybackTimeout).
//
// The frame that crosses a timeout is still delivered; the next read
// fails with ErrStreamEnd.
type Watchdog struct {
	reader Reader
	spec   SampleSpec
	config WatchdogConfig

	maxBlank   int64 // per-channel samples
	maxDrops   int64
	dropWindow int64

	readPos        int64
	posBeforeBlank int64
	posBeforeDrops int64

	windowFlags FrameFlags

	status    []byte
	statusPos int
	statusAny bool

	alive bool
}

// NewWatchdog creates a watchdog around reader.
func NewWatchdog(reader Reader, spec SampleSpec, config WatchdogConfig) (*Watchdog, error) {
	w := &Watchdog{
		reader: reader,
		spec:   spec,
		config: config,
		alive:  true,
	}

	var err error
	if config.NoPlaybackTimeout > 0 {
		if w.maxBlank, err = spec.DurationToSamplesPerChan(config.NoPlaybackTimeout); err != nil {
			return nil, err
		}
	}
	if config.ChoppyPlaybackTimeout > 0 {
		if w.maxDrops, err = spec.DurationToSamplesPerChan(config.ChoppyPlaybackTimeout); err != nil {
			return nil, err
		}
		if w.dropWindow, err = spec.DurationToSamplesPerChan(config.ChoppyPlaybackWindow); err != nil {
			return nil, err
		}
		if w.dropWindow <= 0 {
			return nil, fmt.Errorf("%w: drop detection window %v", ErrInvalidArgument, config.ChoppyPlaybackWindow)
		}
	}
	if config.FrameStatusWindow > 0 {
		w.status = make([]byte, config.FrameStatusWindow)
	}

	logrus.WithFields(logrus.Fields{
		"no_playback_timeout":     config.NoPlaybackTimeout,
		"choppy_playback_timeout": config.ChoppyPlaybackTimeout,
		"sample_spec":             spec.String(),
	}).Debug("watchdog: created")
	return w, nil
}

// Alive reports whether the stream is still considered alive.
func (w *Watchdog) Alive() bool {
	return w.alive
}

// Read pulls the next frame and updates the liveness state.
func (w *Watchdog) Read(frame *Frame) error {
	if !w.alive {
		return fmt.Errorf("%w: watchdog expired", ErrStreamEnd)
	}

	if err := w.reader.Read(frame); err != nil {
		return err
	}

	nextPos := w.readPos + int64(len(frame.Samples())/w.spec.NumChannels())

	w.updateBlank(frame, nextPos)
	w.updateDrops(frame, nextPos)
	w.updateStatus(frame)

	w.readPos = nextPos

	if !w.checkBlank() || !w.checkDrops() {
		w.flushStatus()
		w.alive = false
	}
	return nil
}

func (w *Watchdog) updateBlank(frame *Frame, nextPos int64) {
	if frame.HasFlags(FlagNonblank) {
		w.posBeforeBlank = nextPos
	}
}

func (w *Watchdog) checkBlank() bool {
	if w.maxBlank == 0 {
		return true
	}
	if w.readPos-w.posBeforeBlank < w.maxBlank {
		return true
	}
	logrus.WithFields(logrus.Fields{
		"timeout": w.config.NoPlaybackTimeout,
	}).Warn("watchdog: no playback timeout reached, terminating session")
	return false
}

func (w *Watchdog) updateDrops(frame *Frame, nextPos int64) {
	if w.maxDrops == 0 {
		return
	}
	w.windowFlags |= frame.Flags() & (FlagIncomplete | FlagDrops)

	if nextPos/w.dropWindow != w.readPos/w.dropWindow {
		if !w.windowFlags.hasChop() {
			w.posBeforeDrops = nextPos
		}
		w.windowFlags = 0
	}
}

func (f FrameFlags) hasChop() bool {
	return f&FlagIncomplete != 0 && f&FlagDrops != 0
}

func (w *Watchdog) checkDrops() bool {
	if w.maxDrops == 0 {
		return true
	}
	if w.readPos-w.posBeforeDrops < w.maxDrops {
		return true
	}
	logrus.WithFields(logrus.Fields{
		"timeout": w.config.ChoppyPlaybackTimeout,
	}).Warn("watchdog: choppy playback timeout reached, terminating session")
	return false
}

func (w *Watchdog) updateStatus(frame *Frame) {
	if w.status == nil {
		return
	}

	c := byte('.')
	switch {
	case frame.HasFlags(FlagDrops):
		c = 'D'
	case frame.HasFlags(FlagIncomplete):
		c = 'I'
	case !frame.HasFlags(FlagNonblank):
		c = 'b'
	}
	if c != '.' {
		w.statusAny = true
	}

	w.status[w.statusPos] = c
	w.statusPos++
	if w.statusPos == len(w.status) {
		w.flushStatus()
	}
}

func (w *Watchdog) flushStatus() {
	if w.status == nil || w.statusPos == 0 {
		return
	}
	if w.statusAny {
		logrus.WithFields(logrus.Fields{
			"frames": string(w.status[:w.statusPos]),
		}).Debug("watchdog: frame status")
	}
	w.statusPos = 0
	w.statusAny = false
}
