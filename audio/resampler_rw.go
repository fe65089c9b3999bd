package audio

import "fmt"

// ResamplerReader pulls frames at the input rate, feeds them through a
// resampler, and produces frames at the output rate. Flags are carried
// over from the input frames; capture timestamps are reconstructed from
// the last pushed input timestamp minus the input still queued inside the
// resampler.
type ResamplerReader struct {
	reader    Reader
	resampler Resampler
	inSpec    SampleSpec
	outSpec   SampleSpec

	multiplier float32
	ratio      float64

	lastInCTS int64 // capture time of the next input sample to push
}

// NewResamplerReader creates a resampling reader. Input and output specs
// must share a channel set.
func NewResamplerReader(reader Reader, resampler Resampler, inSpec, outSpec SampleSpec) (*ResamplerReader, error) {
	if !inSpec.ChannelSet().Equal(outSpec.ChannelSet()) {
		return nil, fmt.Errorf("%w: resampler cannot change channels", ErrInvalidArgument)
	}
	rr := &ResamplerReader{
		reader:    reader,
		resampler: resampler,
		inSpec:    inSpec,
		outSpec:   outSpec,
	}
	if !rr.SetScaling(1) {
		return nil, fmt.Errorf("%w: rates unsupported by resampler: in=%d out=%d",
			ErrInvalidArgument, inSpec.SampleRate(), outSpec.SampleRate())
	}
	return rr, nil
}

// SetScaling updates the rate multiplier, normally from a latency
// monitor. It reports false when the resampler rejects the value.
func (rr *ResamplerReader) SetScaling(multiplier float32) bool {
	if !rr.resampler.SetScaling(rr.inSpec.SampleRate(), rr.outSpec.SampleRate(), multiplier) {
		return false
	}
	rr.multiplier = multiplier
	rr.ratio = float64(rr.inSpec.SampleRate()) / float64(rr.outSpec.SampleRate()) * float64(multiplier)
	return true
}

// Read fills the frame with resampled output, pulling input frames as
// needed.
func (rr *ResamplerReader) Read(frame *Frame) error {
	CheckFrame(frame, rr.outSpec)

	out := frame.Samples()
	ch := rr.outSpec.NumChannels()

	pos := 0
	for pos < len(out) {
		n := rr.resampler.PopOutput(out[pos:])
		pos += n * ch
		if pos >= len(out) {
			break
		}

		buf := rr.resampler.BeginPushInput()
		sub := NewFrame(buf)
		if err := rr.reader.Read(sub); err != nil {
			return err
		}
		rr.resampler.EndPushInput(len(buf) / rr.inSpec.NumChannels())

		frame.SetFlags(sub.Flags())
		if cts := sub.CaptureTimestamp(); cts != 0 {
			rr.lastInCTS = cts + int64(rr.inSpec.SamplesPerChanToDuration(int64(len(buf)/rr.inSpec.NumChannels())))
		}
	}

	if rr.lastInCTS != 0 {
		queued := int64(float64(rr.resampler.InputLeft()) * rr.ratio)
		end := rr.lastInCTS - int64(rr.inSpec.SamplesPerChanToDuration(queued))
		cts := end - int64(rr.outSpec.SamplesPerChanToDuration(int64(len(out)/ch)))
		if cts > 0 {
			frame.SetCaptureTimestamp(cts)
		}
	}
	return nil
}

// ResamplerWriter pushes written frames through a resampler and forwards
// the converted output downstream through a scratch buffer.
type ResamplerWriter struct {
	writer    Writer
	resampler Resampler
	inSpec    SampleSpec
	outSpec   SampleSpec

	scratch []float32
}

// NewResamplerWriter creates a resampling writer. Input and output specs
// must share a channel set.
func NewResamplerWriter(writer Writer, resampler Resampler, inSpec, outSpec SampleSpec) (*ResamplerWriter, error) {
	if !inSpec.ChannelSet().Equal(outSpec.ChannelSet()) {
		return nil, fmt.Errorf("%w: resampler cannot change channels", ErrInvalidArgument)
	}
	if !resampler.SetScaling(inSpec.SampleRate(), outSpec.SampleRate(), 1) {
		return nil, fmt.Errorf("%w: rates unsupported by resampler: in=%d out=%d",
			ErrInvalidArgument, inSpec.SampleRate(), outSpec.SampleRate())
	}
	return &ResamplerWriter{
		writer:    writer,
		resampler: resampler,
		inSpec:    inSpec,
		outSpec:   outSpec,
		scratch:   make([]float32, resamplerPushChunk*outSpec.NumChannels()),
	}, nil
}

// SetScaling updates the rate multiplier.
func (rw *ResamplerWriter) SetScaling(multiplier float32) bool {
	return rw.resampler.SetScaling(rw.inSpec.SampleRate(), rw.outSpec.SampleRate(), multiplier)
}

// Write pushes the frame into the resampler and drains whatever output it
// can produce.
func (rw *ResamplerWriter) Write(frame *Frame) error {
	CheckFrame(frame, rw.inSpec)

	in := frame.Samples()
	ch := rw.inSpec.NumChannels()

	pos := 0
	for pos < len(in) {
		buf := rw.resampler.BeginPushInput()
		n := (len(in) - pos) / ch
		if limit := len(buf) / ch; n > limit {
			n = limit
		}
		copy(buf, in[pos:pos+n*ch])
		rw.resampler.EndPushInput(n)
		pos += n * ch

		if err := rw.drain(frame); err != nil {
			return err
		}
	}
	return nil
}

func (rw *ResamplerWriter) drain(src *Frame) error {
	outCh := rw.outSpec.NumChannels()
	for {
		n := rw.resampler.PopOutput(rw.scratch)
		if n == 0 {
			return nil
		}
		sub := NewFrame(rw.scratch[:n*outCh])
		sub.SetFlags(src.Flags())
		if err := rw.writer.Write(sub); err != nil {
			return err
		}
	}
}
