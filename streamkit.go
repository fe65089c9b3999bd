package streamkit

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/pipeline"
)

// Context holds the state shared by the senders and receivers of one
// process: the payload format registry. The mandatory L16 mono and
// stereo formats are registered up front; further formats are added per
// context, never globally.
type Context struct {
	registry *audio.Registry
}

// NewContext creates a context with the mandatory formats registered.
func NewContext() *Context {
	return &Context{registry: audio.NewRegistry()}
}

// Registry exposes the context's payload format registry.
func (c *Context) Registry() *audio.Registry {
	return c.registry
}

// RegisterMultitrack registers a PCM format with an arbitrary channel
// count under a dynamic payload type.
func (c *Context) RegisterMultitrack(pt uint8, rate uint32, tracks int) error {
	return c.registry.RegisterMultitrack(pt, rate, tracks)
}

// RegisterOpus registers an Opus decode format under a dynamic payload
// type.
func (c *Context) RegisterOpus(pt uint8, channels audio.ChannelSet) error {
	return c.registry.RegisterOpus(pt, channels)
}

// ReceiverConfig bundles the pipeline and scheduling tuning of one
// receiver node.
type ReceiverConfig struct {
	Pipeline pipeline.ReceiverConfig
	Loop     pipeline.LoopConfig
}

// DefaultReceiverConfig returns the receiver tuning for the given output
// spec.
func DefaultReceiverConfig(spec audio.SampleSpec) ReceiverConfig {
	return ReceiverConfig{
		Pipeline: pipeline.DefaultReceiverConfig(spec),
		Loop:     pipeline.DefaultLoopConfig(),
	}
}

// SenderConfig bundles the pipeline and scheduling tuning of one sender
// node.
type SenderConfig struct {
	Pipeline pipeline.SenderConfig
	Loop     pipeline.LoopConfig
}

// DefaultSenderConfig returns the sender tuning for the given input
// spec, writing L16 stereo.
func DefaultSenderConfig(spec audio.SampleSpec) SenderConfig {
	return SenderConfig{
		Pipeline: pipeline.DefaultSenderConfig(spec),
		Loop:     pipeline.DefaultLoopConfig(),
	}
}

// SetLogLevel adjusts the verbosity of the toolkit's logging facade.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}
