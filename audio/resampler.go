package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ResamplerProfile selects the quality/CPU tradeoff of the builtin
// resampler backend.
type ResamplerProfile int

const (
	// ResamplerProfileLow is plain linear interpolation.
	ResamplerProfileLow ResamplerProfile = iota

	// ResamplerProfileMedium is linear interpolation over a lightly
	// low-passed input.
	ResamplerProfileMedium

	// ResamplerProfileHigh is linear interpolation over a stronger
	// low-pass. Highest CPU cost of the builtin backend.
	ResamplerProfileHigh
)

// String returns the profile name.
func (p ResamplerProfile) String() string {
	switch p {
	case ResamplerProfileLow:
		return "low"
	case ResamplerProfileMedium:
		return "medium"
	case ResamplerProfileHigh:
		return "high"
	default:
		return "invalid"
	}
}

// Resampler is an asynchronous sample-rate converter. It is a pure sample
// pipe: timestamps and flags are the caller's concern.
//
// The push side hands out an internal buffer via BeginPushInput, which the
// caller fills and commits with EndPushInput. The pop side drains whatever
// output the accumulated input allows.
type Resampler interface {
	// SetScaling updates the conversion ratio to
	// (inRate / outRate) * multiplier. It reports false and keeps the
	// previous ratio when the product leaves the allowed window.
	SetScaling(inRate, outRate uint32, multiplier float32) bool

	// BeginPushInput returns the buffer to fill with interleaved input
	// samples.
	BeginPushInput() []float32

	// EndPushInput commits n per-channel samples of the push buffer.
	EndPushInput(n int)

	// PopOutput produces up to len(out)/channels per-channel output
	// samples and returns the per-channel count produced.
	PopOutput(out []float32) int

	// InputLeft reports the residual input, measured in output-time
	// per-channel samples.
	InputLeft() float32
}

// Scaling window relative to the nominal inRate/outRate ratio.
const (
	minScalingDelta = 0.5
	maxScalingDelta = 2.0
)

const resamplerPushChunk = 1024 // per-channel samples per push

// builtinResampler converts rates by fractional-position linear
// interpolation over a sliding input window. Medium and high profiles
// pre-filter the input with a one-pole low-pass whose strength grows with
// the profile, trading brightness for alias rejection.
type builtinResampler struct {
	spec    SampleSpec
	profile ResamplerProfile

	ratio float64 // input samples consumed per output sample

	// Sliding input window. pos is the fractional read position of the
	// next output sample, counted in per-channel input samples from the
	// start of buf.
	buf []float32
	pos float64

	push []float32

	filterState []float32
	filterAlpha float32
}

// NewResampler creates a builtin resampler for the given spec and
// profile. The initial ratio is 1.
func NewResampler(spec SampleSpec, profile ResamplerProfile) (Resampler, error) {
	if !spec.IsValid() {
		return nil, fmt.Errorf("%w: invalid sample spec", ErrInvalidArgument)
	}

	r := &builtinResampler{
		spec:    spec,
		profile: profile,
		ratio:   1,
		push:    make([]float32, resamplerPushChunk*spec.NumChannels()),
	}

	switch profile {
	case ResamplerProfileMedium:
		r.filterAlpha = 0.5
	case ResamplerProfileHigh:
		r.filterAlpha = 0.25
	}
	if r.filterAlpha != 0 {
		r.filterState = make([]float32, spec.NumChannels())
	}

	logrus.WithFields(logrus.Fields{
		"sample_spec": spec.String(),
		"profile":     profile.String(),
	}).Debug("resampler: created")
	return r, nil
}

func (r *builtinResampler) SetScaling(inRate, outRate uint32, multiplier float32) bool {
	if inRate == 0 || outRate == 0 {
		return false
	}
	ratio := float64(inRate) / float64(outRate) * float64(multiplier)
	nominal := float64(inRate) / float64(outRate)
	if ratio < nominal*minScalingDelta || ratio > nominal*maxScalingDelta {
		logrus.WithFields(logrus.Fields{
			"multiplier": multiplier,
			"ratio":      ratio,
		}).Debug("resampler: scaling rejected")
		return false
	}
	r.ratio = ratio
	return true
}

func (r *builtinResampler) BeginPushInput() []float32 {
	return r.push
}

func (r *builtinResampler) EndPushInput(n int) {
	ch := r.spec.NumChannels()
	if n > len(r.push)/ch {
		n = len(r.push) / ch
	}
	in := r.push[:n*ch]

	if r.filterAlpha != 0 {
		for i := 0; i < n; i++ {
			for c := 0; c < ch; c++ {
				r.filterState[c] += r.filterAlpha * (in[i*ch+c] - r.filterState[c])
				in[i*ch+c] = r.filterState[c]
			}
		}
	}

	r.buf = append(r.buf, in...)
}

func (r *builtinResampler) PopOutput(out []float32) int {
	ch := r.spec.NumChannels()
	want := len(out) / ch
	avail := len(r.buf) / ch

	produced := 0
	for produced < want {
		i := int(r.pos)
		// One sample of lookahead is needed for interpolation.
		if i+1 >= avail {
			break
		}
		frac := float32(r.pos - float64(i))
		for c := 0; c < ch; c++ {
			a := r.buf[i*ch+c]
			b := r.buf[(i+1)*ch+c]
			out[produced*ch+c] = a + (b-a)*frac
		}
		r.pos += r.ratio
		produced++
	}

	// Drop consumed input, keeping the interpolation base sample.
	if drop := int(r.pos); drop > 0 {
		if drop > avail {
			drop = avail
		}
		r.buf = r.buf[drop*ch:]
		r.pos -= float64(drop)
	}
	return produced
}

func (r *builtinResampler) InputLeft() float32 {
	ch := r.spec.NumChannels()
	left := float64(len(r.buf)/ch) - r.pos
	if left < 0 {
		left = 0
	}
	return float32(left / r.ratio)
}
