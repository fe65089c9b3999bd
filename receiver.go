package streamkit

import (
	"fmt"

	"github.com/opd-ai/streamkit/audio"
	"github.com/opd-ai/streamkit/packet"
	"github.com/opd-ai/streamkit/pipeline"
)

// Receiver is a receiving node: a set of slots, each bound to a remote
// sender's endpoints, mixed into one continuous PCM stream.
//
// Read is meant to be driven by the audio device at its own pace; slot
// management may be called from any goroutine and is interleaved with
// frame processing by the pipeline loop.
type Receiver struct {
	source *pipeline.ReceiverSource
}

// NewReceiver creates a receiver node.
func NewReceiver(ctx *Context, config ReceiverConfig) (*Receiver, error) {
	source, err := pipeline.NewReceiverSource(config.Pipeline, config.Loop, ctx.Registry(), nil)
	if err != nil {
		return nil, fmt.Errorf("streamkit: creating receiver: %w", err)
	}
	return &Receiver{source: source}, nil
}

// CreateSlot adds an empty slot and returns its id.
func (r *Receiver) CreateSlot() (pipeline.SlotID, error) {
	return r.source.CreateSlot()
}

// DeleteSlot tears down a slot and its sessions.
func (r *Receiver) DeleteSlot(id pipeline.SlotID) error {
	return r.source.DeleteSlot(id)
}

// AddEndpoint binds an interface of a slot to a protocol. The returned
// writer is where the network loop delivers inbound datagrams; out
// receives outbound RTCP for control endpoints and may be nil otherwise.
func (r *Receiver) AddEndpoint(id pipeline.SlotID, iface pipeline.EndpointInterface, proto pipeline.EndpointProtocol, out packet.Writer) (packet.Writer, error) {
	return r.source.AddEndpoint(id, iface, proto, out)
}

// RemoveEndpoint unbinds an interface of a slot.
func (r *Receiver) RemoveEndpoint(id pipeline.SlotID, iface pipeline.EndpointInterface) error {
	return r.source.RemoveEndpoint(id, iface)
}

// SlotMetrics queries the observable state of a slot.
func (r *Receiver) SlotMetrics(id pipeline.SlotID) (pipeline.ReceiverSlotMetrics, error) {
	return r.source.SlotMetrics(id)
}

// LoopStats returns the scheduling counters of the receiver's loop.
func (r *Receiver) LoopStats() pipeline.LoopStats {
	return r.source.Loop().Stats()
}

// Read fills samples with interleaved mixed audio. The slice length must
// be a multiple of the output channel count. Called from the real-time
// goroutine.
func (r *Receiver) Read(samples []float32) error {
	frame := audio.NewFrame(samples)
	return r.source.Read(frame)
}

// ReadFrame fills one frame of mixed audio, exposing flags and the
// capture timestamp.
func (r *Receiver) ReadFrame(frame *audio.Frame) error {
	return r.source.Read(frame)
}

// Close tears down every slot and stops the loop.
func (r *Receiver) Close() error {
	return r.source.Close()
}
