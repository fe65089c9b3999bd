package audio

import "fmt"

// FrameFlags is a bitset of conditions observed while a frame was built.
// Flags are OR-combined as frames move up the pipeline: a frame assembled
// from several sub-reads carries the union of the sub-frame flags.
type FrameFlags uint8

const (
	// FlagNonblank means at least some samples in the frame were decoded
	// from packets rather than synthesized.
	FlagNonblank FrameFlags = 1 << iota

	// FlagIncomplete means the frame is not fully covered by decoded
	// audio; part of it was filled with silence or beep.
	FlagIncomplete

	// FlagDrops means one or more packets were discarded while the frame
	// was being constructed.
	FlagDrops
)

// Frame is a buffer of interleaved samples plus flags and an optional
// capture timestamp.
//
// The sample storage is borrowed: it belongs to the caller of the pipeline
// stage and must not be retained past the read or write call it was passed
// to. A capture timestamp of zero means "unknown".
type Frame struct {
	samples   []float32
	flags     FrameFlags
	captureTS int64
}

// NewFrame creates a frame over the given sample storage.
func NewFrame(samples []float32) *Frame {
	return &Frame{samples: samples}
}

// Samples returns the sample storage.
func (f *Frame) Samples() []float32 {
	return f.samples
}

// SetSamples replaces the sample storage.
func (f *Frame) SetSamples(samples []float32) {
	f.samples = samples
}

// Flags returns the frame flags.
func (f *Frame) Flags() FrameFlags {
	return f.flags
}

// SetFlags ORs the given flags into the frame.
func (f *Frame) SetFlags(flags FrameFlags) {
	f.flags |= flags
}

// ClearFlags resets all flags.
func (f *Frame) ClearFlags() {
	f.flags = 0
}

// HasFlags reports whether all given flags are set.
func (f *Frame) HasFlags(flags FrameFlags) bool {
	return f.flags&flags == flags
}

// CaptureTimestamp returns the Unix-nanosecond capture time of the first
// sample, or zero if unknown.
func (f *Frame) CaptureTimestamp() int64 {
	return f.captureTS
}

// SetCaptureTimestamp sets the capture time of the first sample.
func (f *Frame) SetCaptureTimestamp(ts int64) {
	f.captureTS = ts
}

// CheckFrame panics if the frame's sample count is not a multiple of the
// spec's channel count. Violating the alignment invariant is a programmer
// error, not a runtime condition.
func CheckFrame(f *Frame, spec SampleSpec) {
	ch := spec.NumChannels()
	if ch == 0 || len(f.samples)%ch != 0 {
		panic(fmt.Sprintf("frame: %d samples not aligned to %d channels", len(f.samples), ch))
	}
}

// Reader produces frames on demand. Read fills the frame's sample buffer
// completely, sets flags and the capture timestamp, and returns an error
// only when the stream is unusable (see ErrStreamEnd, ErrSessionBroken).
type Reader interface {
	Read(frame *Frame) error
}

// Writer consumes frames. Write may split the frame internally; the sample
// buffer is only borrowed for the duration of the call.
type Writer interface {
	Write(frame *Frame) error
}
