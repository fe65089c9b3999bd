package audio

import (
	"github.com/sirupsen/logrus"
)

// Fanout duplicates a written stream to a dynamic set of output writers.
//
// A write that fails on one output does not short-circuit the others;
// the first error encountered is returned after every output was given
// the frame.
type Fanout struct {
	spec    SampleSpec
	outputs []Writer
}

// NewFanout creates a fanout with no outputs. Writes to an empty fanout
// discard the frame.
func NewFanout(spec SampleSpec) *Fanout {
	logrus.WithFields(logrus.Fields{
		"sample_spec": spec.String(),
	}).Debug("fanout: created")
	return &Fanout{spec: spec}
}

// AddOutput attaches a writer.
func (f *Fanout) AddOutput(w Writer) {
	f.outputs = append(f.outputs, w)
	logrus.WithFields(logrus.Fields{
		"outputs": len(f.outputs),
	}).Debug("fanout: output added")
}

// RemoveOutput detaches a writer.
func (f *Fanout) RemoveOutput(w Writer) {
	for i, out := range f.outputs {
		if out == w {
			f.outputs = append(f.outputs[:i], f.outputs[i+1:]...)
			logrus.WithFields(logrus.Fields{
				"outputs": len(f.outputs),
			}).Debug("fanout: output removed")
			return
		}
	}
}

// NumOutputs returns the number of attached writers.
func (f *Fanout) NumOutputs() int {
	return len(f.outputs)
}

// Write hands the frame to every output.
func (f *Fanout) Write(frame *Frame) error {
	CheckFrame(frame, f.spec)

	var firstErr error
	for _, out := range f.outputs {
		if err := out.Write(frame); err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err.Error(),
			}).Warn("fanout: output write failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
