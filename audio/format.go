package audio

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// FrameDecoder decodes one packet payload at a time into PCM samples.
//
// The call sequence per packet is Begin, then any mix of Read and Shift,
// then End. Position and Available may be consulted at any point between
// Begin and End.
type FrameDecoder interface {
	// Begin starts decoding a payload whose first sample has the given
	// RTP timestamp.
	Begin(rtpTS uint32, payload []byte) error

	// Position returns the RTP timestamp of the next sample Read would
	// produce.
	Position() uint32

	// Available returns the number of per-channel samples left in the
	// current payload.
	Available() int

	// Read decodes up to len(dst)/channels per-channel samples into the
	// interleaved dst buffer and returns the per-channel count decoded.
	Read(dst []float32) int

	// Shift skips up to n per-channel samples and returns the count
	// actually skipped.
	Shift(n int) int

	// End finishes the current payload.
	End()
}

// FrameEncoder encodes PCM samples into one packet payload at a time.
//
// The call sequence per packet is Begin, one or more Write calls, then
// End, which returns the number of payload bytes produced.
type FrameEncoder interface {
	// Begin starts encoding into dst, which must hold the whole payload.
	Begin(dst []byte)

	// Write encodes the interleaved samples and returns the per-channel
	// count consumed.
	Write(samples []float32) int

	// End finishes the payload and returns its size in bytes.
	End() int
}

// Format describes a payload type: its sample spec and codec factories.
// Decode-only formats have a nil NewEncoder.
type Format struct {
	PayloadType uint8
	Spec        SampleSpec

	NewEncoder func() FrameEncoder
	NewDecoder func() FrameDecoder

	// payloadDuration computes per-channel samples covered by a payload
	// of the given size.
	payloadDuration func(payloadLen int) uint32

	// payloadSize computes the payload size for a per-channel sample
	// count. Zero for formats with variable-rate payloads.
	payloadSize func(samples int) int
}

// PayloadDuration returns the per-channel sample count covered by a
// payload of the given size.
func (f *Format) PayloadDuration(payloadLen int) uint32 {
	return f.payloadDuration(payloadLen)
}

// PayloadSize returns the payload size in bytes for a per-channel sample
// count, or zero when the format is variable-rate.
func (f *Format) PayloadSize(samples int) int {
	if f.payloadSize == nil {
		return 0
	}
	return f.payloadSize(samples)
}

// Mandatory static payload types (RFC 3551): L16 stereo and mono at
// 44100 Hz.
const (
	PayloadTypeL16Stereo uint8 = 10
	PayloadTypeL16Mono   uint8 = 11
)

// Registry maps payload types to formats. A registry starts with the
// mandatory L16 formats; dynamic formats (multitrack PCM families, Opus)
// are registered at run time.
//
// Registries are per-context and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	formats map[uint8]*Format
}

// NewRegistry creates a registry holding the mandatory formats.
func NewRegistry() *Registry {
	r := &Registry{
		formats: make(map[uint8]*Format),
	}
	r.mustRegister(NewPCMFormat(PayloadTypeL16Mono, NewSampleSpec(44100, MonoChannelSet())))
	r.mustRegister(NewPCMFormat(PayloadTypeL16Stereo, NewSampleSpec(44100, StereoChannelSet())))
	logrus.WithFields(logrus.Fields{
		"formats": len(r.formats),
	}).Debug("format registry: created with mandatory formats")
	return r
}

// Register adds a format. Registering an already-registered payload type
// fails.
func (r *Registry) Register(f *Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.formats[f.PayloadType]; ok {
		return fmt.Errorf("%w: payload type %d already registered", ErrInvalidArgument, f.PayloadType)
	}
	r.formats[f.PayloadType] = f
	logrus.WithFields(logrus.Fields{
		"payload_type": f.PayloadType,
		"sample_spec":  f.Spec.String(),
	}).Info("format registry: format registered")
	return nil
}

// RegisterMultitrack registers a PCM format with an arbitrary channel
// count under a dynamic payload type.
func (r *Registry) RegisterMultitrack(pt uint8, rate uint32, tracks int) error {
	if tracks <= 0 || tracks > maxChannels {
		return fmt.Errorf("%w: track count %d", ErrInvalidArgument, tracks)
	}
	mask := ChannelMask(1)<<uint(tracks) - 1
	spec := NewSampleSpec(rate, NewChannelSet(ChannelLayoutMultitrack, mask))
	return r.Register(NewPCMFormat(pt, spec))
}

// Lookup returns the format for a payload type.
func (r *Registry) Lookup(pt uint8) (*Format, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formats[pt]
	if !ok {
		return nil, fmt.Errorf("%w: payload type %d", ErrUnknownFormat, pt)
	}
	return f, nil
}

func (r *Registry) mustRegister(f *Format) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}
