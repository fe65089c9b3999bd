package streamkit

import (
	"fmt"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/pipeline"
)

// Sender is a sending node: one written PCM stream fanned out to a set
// of slots, each encoding and emitting packets on its own endpoints.
//
// Write is meant to be driven by the audio device at its own pace; slot
// management may be called from any goroutine and is interleaved with
// frame processing by the pipeline loop.
type Sender struct {
	sink *pipeline.SenderSink
}

// NewSender creates a sender node.
func NewSender(ctx *Context, config SenderConfig) (*Sender, error) {
	sink, err := pipeline.NewSenderSink(config.Pipeline, config.Loop, ctx.Registry(), nil)
	if err != nil {
		return nil, fmt.Errorf("streamkit: creating sender: %w", err)
	}
	return &Sender{sink: sink}, nil
}

// CreateSlot adds an empty slot and returns its id.
func (s *Sender) CreateSlot() (pipeline.SlotID, error) {
	return s.sink.CreateSlot()
}

// DeleteSlot flushes and tears down a slot.
func (s *Sender) DeleteSlot(id pipeline.SlotID) error {
	return s.sink.DeleteSlot(id)
}

// AddEndpoint binds an interface of a slot to a protocol. out receives
// the packets the slot emits there; for control endpoints the returned
// writer accepts inbound RTCP from the network loop.
func (s *Sender) AddEndpoint(id pipeline.SlotID, iface pipeline.EndpointInterface, proto pipeline.EndpointProtocol, out packet.Writer) (packet.Writer, error) {
	return s.sink.AddEndpoint(id, iface, proto, out)
}

// RemoveEndpoint unbinds an interface of a slot.
func (s *Sender) RemoveEndpoint(id pipeline.SlotID, iface pipeline.EndpointInterface) error {
	return s.sink.RemoveEndpoint(id, iface)
}

// SlotMetrics queries the observable state of a slot.
func (s *Sender) SlotMetrics(id pipeline.SlotID) (pipeline.SenderSlotMetrics, error) {
	return s.sink.SlotMetrics(id)
}

// LoopStats returns the scheduling counters of the sender's loop.
func (s *Sender) LoopStats() pipeline.LoopStats {
	return s.sink.Loop().Stats()
}

// Write consumes interleaved audio samples. The slice length must be a
// multiple of the input channel count. Called from the real-time
// goroutine.
func (s *Sender) Write(samples []float32) error {
	frame := audio.NewFrame(samples)
	frame.SetFlags(audio.FlagNonblank)
	return s.sink.Write(frame)
}

// WriteFrame consumes one frame of audio, honoring its flags and
// capture timestamp.
func (s *Sender) WriteFrame(frame *audio.Frame) error {
	return s.sink.Write(frame)
}

// Close flushes every slot and stops the loop.
func (s *Sender) Close() error {
	return s.sink.Close()
}
