package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ChannelMapper converts interleaved samples between two channel sets
// through a mixing matrix computed once at construction.
//
// Surround-to-surround mapping uses a position table: matching positions
// copy through, missing output positions borrow from related input
// positions, and down-mix rows are normalized so no output channel can
// exceed unit gain. Multitrack-to-multitrack mapping copies matching
// track numbers and leaves the rest silent. Mixed-layout mapping pairs
// channels by interleaved index.
type ChannelMapper struct {
	inSet  ChannelSet
	outSet ChannelSet

	// matrix[out][in] in interleaved channel order.
	matrix [][]float32
}

// NewChannelMapper builds a mapper from inSet to outSet.
func NewChannelMapper(inSet, outSet ChannelSet) (*ChannelMapper, error) {
	if !inSet.IsValid() || !outSet.IsValid() {
		return nil, fmt.Errorf("%w: invalid channel set", ErrInvalidArgument)
	}

	m := &ChannelMapper{
		inSet:  inSet,
		outSet: outSet,
	}
	m.buildMatrix()

	logrus.WithFields(logrus.Fields{
		"in_channels":  inSet.String(),
		"out_channels": outSet.String(),
	}).Debug("channel mapper: created")
	return m, nil
}

// Map converts one interleaved input region into one interleaved output
// region covering the same per-channel sample count.
func (m *ChannelMapper) Map(in, out []float32) {
	inCh := m.inSet.NumChannels()
	outCh := m.outSet.NumChannels()
	n := len(out) / outCh
	if got := len(in) / inCh; got < n {
		n = got
	}

	for i := 0; i < n; i++ {
		inRow := in[i*inCh : (i+1)*inCh]
		outRow := out[i*outCh : (i+1)*outCh]
		for oc := 0; oc < outCh; oc++ {
			var acc float32
			for ic := 0; ic < inCh; ic++ {
				acc += m.matrix[oc][ic] * inRow[ic]
			}
			outRow[oc] = acc
		}
	}
}

func (m *ChannelMapper) buildMatrix() {
	inCh := m.inSet.NumChannels()
	outCh := m.outSet.NumChannels()

	m.matrix = make([][]float32, outCh)
	for i := range m.matrix {
		m.matrix[i] = make([]float32, inCh)
	}

	if m.inSet.Layout() == ChannelLayoutSurround && m.outSet.Layout() == ChannelLayoutSurround {
		m.buildSurroundMatrix()
	} else {
		m.buildDirectMatrix()
	}

	m.normalize()
}

// surroundSources lists, for each surround position, the fallback input
// positions and gains used when the position itself is absent from the
// input set.
var surroundSources = map[int][]struct {
	pos  int
	gain float32
}{
	ChanFrontLeft: {
		{ChanFrontCenter, 0.707},
		{ChanFrontRight, 1},
		{ChanBackLeft, 0.707},
		{ChanSideLeft, 0.707},
	},
	ChanFrontRight: {
		{ChanFrontCenter, 0.707},
		{ChanFrontLeft, 1},
		{ChanBackRight, 0.707},
		{ChanSideRight, 0.707},
	},
	ChanFrontCenter: {
		{ChanFrontLeft, 0.5},
		{ChanFrontRight, 0.5},
	},
	ChanBackLeft: {
		{ChanFrontLeft, 0.707},
		{ChanSideLeft, 0.707},
	},
	ChanBackRight: {
		{ChanFrontRight, 0.707},
		{ChanSideRight, 0.707},
	},
	ChanSideLeft: {
		{ChanFrontLeft, 0.707},
		{ChanBackLeft, 0.707},
	},
	ChanSideRight: {
		{ChanFrontRight, 0.707},
		{ChanBackRight, 0.707},
	},
}

func (m *ChannelMapper) buildSurroundMatrix() {
	for _, outPos := range m.outSet.Positions() {
		oc, _ := m.outSet.Offset(outPos)

		if ic, ok := m.inSet.Offset(outPos); ok {
			m.matrix[oc][ic] = 1
			continue
		}

		for _, src := range surroundSources[outPos] {
			if ic, ok := m.inSet.Offset(src.pos); ok {
				m.matrix[oc][ic] = src.gain
			}
		}
	}

	// Input channels that reached no output at all are folded into every
	// output so down-mix does not silently discard audio. Mono output of
	// a stereo input becomes the average this way.
	m.foldOrphans()
}

func (m *ChannelMapper) foldOrphans() {
	inCh := m.inSet.NumChannels()
	outCh := m.outSet.NumChannels()

	for ic := 0; ic < inCh; ic++ {
		used := false
		for oc := 0; oc < outCh; oc++ {
			if m.matrix[oc][ic] != 0 {
				used = true
				break
			}
		}
		if used {
			continue
		}
		for oc := 0; oc < outCh; oc++ {
			m.matrix[oc][ic] = 1
		}
	}
}

// buildDirectMatrix copies matching track numbers between multitrack sets
// and pairs channels by interleaved index between different layouts.
func (m *ChannelMapper) buildDirectMatrix() {
	if m.inSet.Layout() == ChannelLayoutMultitrack && m.outSet.Layout() == ChannelLayoutMultitrack {
		for _, pos := range m.outSet.Positions() {
			if ic, ok := m.inSet.Offset(pos); ok {
				oc, _ := m.outSet.Offset(pos)
				m.matrix[oc][ic] = 1
			}
		}
		return
	}

	inCh := m.inSet.NumChannels()
	outCh := m.outSet.NumChannels()

	n := inCh
	if outCh < n {
		n = outCh
	}
	for i := 0; i < n; i++ {
		m.matrix[i][i] = 1
	}
}

// normalize scales each output row so its coefficient sum does not exceed
// one, keeping down-mixed output within sample range.
func (m *ChannelMapper) normalize() {
	for _, row := range m.matrix {
		var sum float32
		for _, c := range row {
			if c < 0 {
				sum -= c
			} else {
				sum += c
			}
		}
		if sum > 1 {
			for i := range row {
				row[i] /= sum
			}
		}
	}
}

const mapperChunkSize = 1024 // per-channel samples per scratch pass

// MapperReader pulls frames in the input channel set and produces frames
// in the output channel set, chunked through an internal scratch buffer.
type MapperReader struct {
	reader  Reader
	mapper  *ChannelMapper
	inSpec  SampleSpec
	outSpec SampleSpec
	scratch []float32
}

// NewMapperReader creates a mapping reader. The input and output specs
// must share a sample rate; the mapper changes channels only.
func NewMapperReader(reader Reader, inSpec, outSpec SampleSpec) (*MapperReader, error) {
	if inSpec.SampleRate() != outSpec.SampleRate() {
		return nil, fmt.Errorf("%w: mapper cannot change sample rate: %d != %d",
			ErrInvalidArgument, inSpec.SampleRate(), outSpec.SampleRate())
	}
	mapper, err := NewChannelMapper(inSpec.ChannelSet(), outSpec.ChannelSet())
	if err != nil {
		return nil, err
	}
	return &MapperReader{
		reader:  reader,
		mapper:  mapper,
		inSpec:  inSpec,
		outSpec: outSpec,
		scratch: make([]float32, mapperChunkSize*inSpec.NumChannels()),
	}, nil
}

// Read fills the frame with mapped samples pulled from the input reader.
func (mr *MapperReader) Read(frame *Frame) error {
	CheckFrame(frame, mr.outSpec)

	out := frame.Samples()
	inCh := mr.inSpec.NumChannels()
	outCh := mr.outSpec.NumChannels()

	pos := 0
	for pos < len(out) {
		n := (len(out) - pos) / outCh
		if limit := len(mr.scratch) / inCh; n > limit {
			n = limit
		}

		sub := NewFrame(mr.scratch[:n*inCh])
		if err := mr.reader.Read(sub); err != nil {
			return err
		}

		mr.mapper.Map(sub.Samples(), out[pos:pos+n*outCh])

		frame.SetFlags(sub.Flags())
		if pos == 0 {
			frame.SetCaptureTimestamp(sub.CaptureTimestamp())
		}
		pos += n * outCh
	}
	return nil
}

// MapperWriter converts frames from the input channel set and passes them
// on in the output channel set, chunked through an internal scratch
// buffer.
type MapperWriter struct {
	writer  Writer
	mapper  *ChannelMapper
	inSpec  SampleSpec
	outSpec SampleSpec
	scratch []float32
}

// NewMapperWriter creates a mapping writer. The input and output specs
// must share a sample rate.
func NewMapperWriter(writer Writer, inSpec, outSpec SampleSpec) (*MapperWriter, error) {
	if inSpec.SampleRate() != outSpec.SampleRate() {
		return nil, fmt.Errorf("%w: mapper cannot change sample rate: %d != %d",
			ErrInvalidArgument, inSpec.SampleRate(), outSpec.SampleRate())
	}
	mapper, err := NewChannelMapper(inSpec.ChannelSet(), outSpec.ChannelSet())
	if err != nil {
		return nil, err
	}
	return &MapperWriter{
		writer:  writer,
		mapper:  mapper,
		inSpec:  inSpec,
		outSpec: outSpec,
		scratch: make([]float32, mapperChunkSize*outSpec.NumChannels()),
	}, nil
}

// Write maps the frame and forwards it downstream.
func (mw *MapperWriter) Write(frame *Frame) error {
	CheckFrame(frame, mw.inSpec)

	in := frame.Samples()
	inCh := mw.inSpec.NumChannels()
	outCh := mw.outSpec.NumChannels()

	pos := 0
	for pos < len(in) {
		n := (len(in) - pos) / inCh
		if limit := len(mw.scratch) / outCh; n > limit {
			n = limit
		}

		mw.mapper.Map(in[pos:pos+n*inCh], mw.scratch[:n*outCh])

		sub := NewFrame(mw.scratch[:n*outCh])
		sub.SetFlags(frame.Flags())
		if cts := frame.CaptureTimestamp(); cts != 0 {
			offset := pos / inCh
			sub.SetCaptureTimestamp(cts + int64(mw.inSpec.SamplesPerChanToDuration(int64(offset))))
		}
		if err := mw.writer.Write(sub); err != nil {
			return err
		}
		pos += n * inCh
	}
	return nil
}
