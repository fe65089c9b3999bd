package pipeline

import (
	"fmt"
	"time"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/fec"
	"github.com/opd-ai/streamkit/rtcp"
	"github.com/opd-ai/streamkit/rtp"
)

const (
	// DefaultTargetLatency is the receiver playback latency used when the
	// caller does not tune it.
	DefaultTargetLatency = 200 * time.Millisecond

	// DefaultPacketLength is the sender packet duration used when the
	// caller does not tune it.
	DefaultPacketLength = 7 * time.Millisecond

	// defaultMaxPacketSize bounds the serialized datagram size.
	defaultMaxPacketSize = 2048

	// defaultPoolPackets sizes the per-slot packet and buffer pools.
	defaultPoolPackets = 256

	// defaultQueueLen bounds the per-endpoint inbound queues.
	defaultQueueLen = 512

	// defaultMaxFrameSize bounds internal frame buffers, in samples
	// across all channels.
	defaultMaxFrameSize = 8192
)

// ReceiverConfig tunes one receiver slot and the sessions it spawns.
type ReceiverConfig struct {
	// SampleSpec is the output rate and channel layout of mixed frames.
	SampleSpec audio.SampleSpec

	// TargetLatency is the desired depth of the incoming queue. Playback
	// of a new session starts only once this much audio is buffered.
	TargetLatency time.Duration

	// Latency tunes the latency monitor built for each session.
	Latency audio.LatencyMonitorConfig

	// Watchdog tunes the session liveness checks.
	Watchdog audio.WatchdogConfig

	// Validator bounds the inter-packet jumps a session tolerates.
	Validator rtp.ValidatorConfig

	// FEC tunes the block repair reader. The scheme is taken from the
	// slot's endpoints, not from here.
	FEC fec.ReaderConfig

	// Control tunes the per-slot RTCP session.
	Control rtcp.Config

	// ResamplerProfile selects the scaling quality of each session.
	ResamplerProfile audio.ResamplerProfile

	// Beep replaces silence gaps with a test tone instead of zeros.
	Beep bool

	// MaxPacketSize bounds serialized datagrams.
	MaxPacketSize int

	// MaxFrameSize bounds internal frame buffers, in samples across all
	// channels.
	MaxFrameSize int
}

// DefaultReceiverConfig returns a receiver tuning for the given output
// spec.
func DefaultReceiverConfig(spec audio.SampleSpec) ReceiverConfig {
	return ReceiverConfig{
		SampleSpec:       spec,
		TargetLatency:    DefaultTargetLatency,
		Latency:          audio.DefaultLatencyMonitorConfig(DefaultTargetLatency),
		Watchdog:         audio.DefaultWatchdogConfig(),
		Validator:        rtp.DefaultValidatorConfig(),
		FEC:              fec.ReaderConfig{MaxBlocksAhead: 2},
		Control:          rtcp.DefaultConfig(0, "streamkit-receiver"),
		ResamplerProfile: audio.ResamplerProfileMedium,
		MaxPacketSize:    defaultMaxPacketSize,
		MaxFrameSize:     defaultMaxFrameSize,
	}
}

// Validate reports the first unusable receiver parameter.
func (c ReceiverConfig) Validate() error {
	if !c.SampleSpec.IsValid() {
		return fmt.Errorf("%w: sample spec %s", ErrInvalidConfig, c.SampleSpec.String())
	}
	if c.TargetLatency <= 0 {
		return fmt.Errorf("%w: target latency %v", ErrInvalidConfig, c.TargetLatency)
	}
	if c.MaxPacketSize <= 0 || c.MaxFrameSize <= 0 {
		return fmt.Errorf("%w: max packet size %d, max frame size %d",
			ErrInvalidConfig, c.MaxPacketSize, c.MaxFrameSize)
	}
	return nil
}

// SenderConfig tunes one sender slot.
type SenderConfig struct {
	// SampleSpec is the rate and channel layout of written frames.
	SampleSpec audio.SampleSpec

	// PayloadType selects the wire encoding of source packets. Its
	// format defines the rate and channel layout on the wire; when they
	// differ from SampleSpec the slot maps and resamples on the way out.
	PayloadType uint8

	// PacketLength is the duration of audio carried by one packet.
	PacketLength time.Duration

	// FEC tunes block protection. The scheme is taken from the slot's
	// endpoints, not from here.
	FEC fec.WriterConfig

	// Control tunes the per-slot RTCP session.
	Control rtcp.Config

	// EnableInterleaving shuffles the outgoing packet order to spread
	// burst losses across FEC blocks.
	EnableInterleaving bool

	// ResamplerProfile selects the scaling quality when SampleSpec and
	// PacketSpec rates differ.
	ResamplerProfile audio.ResamplerProfile

	// MaxPacketSize bounds serialized datagrams.
	MaxPacketSize int

	// MaxFrameSize bounds internal frame buffers, in samples across all
	// channels.
	MaxFrameSize int
}

// DefaultSenderConfig returns a sender tuning writing L16 stereo.
func DefaultSenderConfig(spec audio.SampleSpec) SenderConfig {
	return SenderConfig{
		SampleSpec:       spec,
		PayloadType:      audio.PayloadTypeL16Stereo,
		PacketLength:     DefaultPacketLength,
		FEC:              fec.WriterConfig{SourceBlockLength: 18, RepairBlockLength: 10, RepairPayloadType: 123},
		Control:          rtcp.DefaultConfig(0, "streamkit-sender"),
		ResamplerProfile: audio.ResamplerProfileMedium,
		MaxPacketSize:    defaultMaxPacketSize,
		MaxFrameSize:     defaultMaxFrameSize,
	}
}

// Validate reports the first unusable sender parameter.
func (c SenderConfig) Validate() error {
	if !c.SampleSpec.IsValid() {
		return fmt.Errorf("%w: sample spec %s", ErrInvalidConfig, c.SampleSpec.String())
	}
	if c.PacketLength <= 0 {
		return fmt.Errorf("%w: packet length %v", ErrInvalidConfig, c.PacketLength)
	}
	if c.MaxPacketSize <= 0 || c.MaxFrameSize <= 0 {
		return fmt.Errorf("%w: max packet size %d, max frame size %d",
			ErrInvalidConfig, c.MaxPacketSize, c.MaxFrameSize)
	}
	return nil
}

// LoopConfig tunes how the loop interleaves frames and tasks.
type LoopConfig struct {
	// MinFrameLengthBetweenTasks is the smallest stretch of audio
	// processed before the loop considers draining tasks again.
	MinFrameLengthBetweenTasks time.Duration

	// MaxFrameLengthBetweenTasks caps the sub-frame size. Frames longer
	// than this are split so tasks get a chance between sub-frames.
	MaxFrameLengthBetweenTasks time.Duration

	// MaxInframeTaskProcessing bounds the wall-clock time spent on tasks
	// inside one frame.
	MaxInframeTaskProcessing time.Duration

	// TaskProcessingProhibitedInterval is the guard window centered on
	// each frame deadline during which no task may start.
	TaskProcessingProhibitedInterval time.Duration

	// EnablePreciseTaskScheduling turns on the deadline-aware placement
	// of tasks. When off, frames are processed whole with no subframe
	// split or in-frame task draining, tasks run in place whenever the
	// loop is free, and the guard window is ignored.
	EnablePreciseTaskScheduling bool
}

// DefaultLoopConfig returns the scheduling tuning used when the caller
// does not override it.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MinFrameLengthBetweenTasks:       200 * time.Microsecond,
		MaxFrameLengthBetweenTasks:       time.Millisecond,
		MaxInframeTaskProcessing:         20 * time.Microsecond,
		TaskProcessingProhibitedInterval: 200 * time.Microsecond,
		EnablePreciseTaskScheduling:      true,
	}
}

// Validate reports the first unusable loop parameter.
func (c LoopConfig) Validate() error {
	if c.MinFrameLengthBetweenTasks <= 0 || c.MaxFrameLengthBetweenTasks <= 0 {
		return fmt.Errorf("%w: frame length bounds %v, %v",
			ErrInvalidConfig, c.MinFrameLengthBetweenTasks, c.MaxFrameLengthBetweenTasks)
	}
	if c.MinFrameLengthBetweenTasks > c.MaxFrameLengthBetweenTasks {
		return fmt.Errorf("%w: min frame length %v exceeds max %v",
			ErrInvalidConfig, c.MinFrameLengthBetweenTasks, c.MaxFrameLengthBetweenTasks)
	}
	if c.MaxInframeTaskProcessing <= 0 {
		return fmt.Errorf("%w: max inframe task processing %v",
			ErrInvalidConfig, c.MaxInframeTaskProcessing)
	}
	if c.TaskProcessingProhibitedInterval < 0 {
		return fmt.Errorf("%w: prohibited interval %v",
			ErrInvalidConfig, c.TaskProcessingProhibitedInterval)
	}
	return nil
}
