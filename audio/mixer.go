package audio

import (
	"github.com/sirupsen/logrus"
)

// Mixer sums a dynamic set of input readers into one output stream.
//
// An input that fails to read contributes silence to the frame being
// mixed; its error is not propagated, since one broken session must not
// interrupt the others. The sum saturates at the sample range. Flags and
// the earliest non-zero capture timestamp of the inputs are carried onto
// the output frame.
type Mixer struct {
	spec    SampleSpec
	inputs  []Reader
	scratch []float32
}

// NewMixer creates a mixer with no inputs. Frames read from an empty
// mixer are silence.
func NewMixer(spec SampleSpec, maxFrameSize int) *Mixer {
	logrus.WithFields(logrus.Fields{
		"sample_spec": spec.String(),
	}).Debug("mixer: created")
	return &Mixer{
		spec:    spec,
		scratch: make([]float32, maxFrameSize),
	}
}

// AddInput attaches a reader to the mix.
func (m *Mixer) AddInput(r Reader) {
	m.inputs = append(m.inputs, r)
	logrus.WithFields(logrus.Fields{
		"inputs": len(m.inputs),
	}).Debug("mixer: input added")
}

// RemoveInput detaches a reader from the mix.
func (m *Mixer) RemoveInput(r Reader) {
	for i, in := range m.inputs {
		if in == r {
			m.inputs = append(m.inputs[:i], m.inputs[i+1:]...)
			logrus.WithFields(logrus.Fields{
				"inputs": len(m.inputs),
			}).Debug("mixer: input removed")
			return
		}
	}
}

// NumInputs returns the number of attached readers.
func (m *Mixer) NumInputs() int {
	return len(m.inputs)
}

// Read sums one frame from every input.
func (m *Mixer) Read(frame *Frame) error {
	CheckFrame(frame, m.spec)

	out := frame.Samples()
	for i := range out {
		out[i] = 0
	}

	for _, in := range m.inputs {
		sub := NewFrame(m.scratch[:len(out)])
		sub.ClearFlags()
		sub.SetCaptureTimestamp(0)
		if err := in.Read(sub); err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err.Error(),
			}).Debug("mixer: input read failed, mixing silence")
			continue
		}

		for i, s := range sub.Samples() {
			out[i] = clampSample(out[i] + s)
		}

		frame.SetFlags(sub.Flags())
		if cts := sub.CaptureTimestamp(); cts != 0 {
			if cur := frame.CaptureTimestamp(); cur == 0 || cts < cur {
				frame.SetCaptureTimestamp(cts)
			}
		}
	}
	return nil
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
