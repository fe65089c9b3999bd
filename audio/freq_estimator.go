package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FreqEstimatorProfile selects a tuning preset for the estimator.
type FreqEstimatorProfile int

const (
	// FreqEstimatorResponsive tunes fast. Good for low network latency
	// and jitter.
	FreqEstimatorResponsive FreqEstimatorProfile = iota

	// FreqEstimatorGradual tunes slowly and smoothly. Good for high
	// network latency and jitter.
	FreqEstimatorGradual
)

// String returns the profile name.
func (p FreqEstimatorProfile) String() string {
	switch p {
	case FreqEstimatorResponsive:
		return "responsive"
	case FreqEstimatorGradual:
		return "gradual"
	default:
		return "invalid"
	}
}

// FreqEstimatorConfig holds the tunable parameters of the estimator.
type FreqEstimatorConfig struct {
	// P is the proportional gain of the PI controller.
	P float64

	// I is the integral gain of the PI controller.
	I float64

	// DecimationFactor1 downsamples the latency input on the first
	// stage. Must be in [1, 128].
	DecimationFactor1 int

	// DecimationFactor2 downsamples on the second stage. Zero disables
	// the second stage. Must be in [0, 128].
	DecimationFactor2 int
}

const (
	feDecimLen       = 256 // ring size of each decimation stage, power of two
	feDecimLenMask   = feDecimLen - 1
	feDecimFactorMax = 128
)

func freqEstimatorConfig(profile FreqEstimatorProfile) FreqEstimatorConfig {
	switch profile {
	case FreqEstimatorGradual:
		return FreqEstimatorConfig{
			P:                 1e-6,
			I:                 5e-9,
			DecimationFactor1: feDecimFactorMax,
			DecimationFactor2: feDecimFactorMax,
		}
	default:
		return FreqEstimatorConfig{
			P:                 1e-6,
			I:                 1e-10,
			DecimationFactor1: feDecimFactorMax,
			DecimationFactor2: 0,
		}
	}
}

// FreqEstimator evaluates the ratio of the sender's clock to the
// receiver's clock. It is fed the target latency at construction and the
// actual latency on every update; the output coefficient, applied as the
// resampler scaling, moves the latency toward the target.
//
// The latency input is smoothed by one or two cascaded decimation stages
// (moving averages over a ring of 256 entries) before entering a PI
// controller.
type FreqEstimator struct {
	config FreqEstimatorConfig
	target float64

	dec1Buf [feDecimLen]float64
	dec2Buf [feDecimLen]float64
	dec1Ind int
	dec2Ind int
	counter int

	accum float64
	coeff float64
}

// NewFreqEstimator creates an estimator for the given profile and target
// latency in per-channel samples.
func NewFreqEstimator(profile FreqEstimatorProfile, targetLatency uint32) (*FreqEstimator, error) {
	config := freqEstimatorConfig(profile)
	if config.DecimationFactor1 < 1 || config.DecimationFactor1 > feDecimFactorMax {
		return nil, fmt.Errorf("%w: decimation factor 1: %d", ErrInvalidArgument, config.DecimationFactor1)
	}
	if config.DecimationFactor2 < 0 || config.DecimationFactor2 > feDecimFactorMax {
		return nil, fmt.Errorf("%w: decimation factor 2: %d", ErrInvalidArgument, config.DecimationFactor2)
	}

	fe := &FreqEstimator{
		config: config,
		target: float64(targetLatency),
		coeff:  1,
	}
	for i := 0; i < feDecimLen; i++ {
		fe.dec1Buf[i] = fe.target
		fe.dec2Buf[i] = fe.target
	}

	logrus.WithFields(logrus.Fields{
		"profile":        profile.String(),
		"target_latency": targetLatency,
		"p":              config.P,
		"i":              config.I,
	}).Debug("freq estimator: created")
	return fe, nil
}

// FreqCoeff returns the current frequency coefficient.
func (fe *FreqEstimator) FreqCoeff() float32 {
	return float32(fe.coeff)
}

// Update feeds the estimator the current latency in per-channel samples.
func (fe *FreqEstimator) Update(currentLatency uint32) {
	if filtered, ok := fe.runDecimators(float64(currentLatency)); ok {
		fe.coeff = fe.runController(filtered)
	}
}

func (fe *FreqEstimator) runDecimators(current float64) (float64, bool) {
	fe.counter++

	fe.dec1Buf[fe.dec1Ind] = current

	if fe.counter%fe.config.DecimationFactor1 == 0 {
		fe.dec2Buf[fe.dec2Ind] = ringAverage(&fe.dec1Buf)

		if fe.config.DecimationFactor2 == 0 {
			return fe.dec2Buf[fe.dec2Ind], true
		}
		if fe.counter%(fe.config.DecimationFactor1*fe.config.DecimationFactor2) == 0 {
			fe.counter = 0
			return ringAverage(&fe.dec2Buf), true
		}

		fe.dec2Ind = (fe.dec2Ind + 1) & feDecimLenMask
	}

	fe.dec1Ind = (fe.dec1Ind + 1) & feDecimLenMask

	return 0, false
}

func (fe *FreqEstimator) runController(current float64) float64 {
	err := current - fe.target
	fe.accum += err
	return 1 + fe.config.P*err + fe.config.I*fe.accum
}

func ringAverage(buf *[feDecimLen]float64) float64 {
	var sum float64
	for _, v := range buf {
		sum += v
	}
	return sum / feDecimLen
}
