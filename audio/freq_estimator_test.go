package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreqEstimatorStartsAtUnity(t *testing.T) {
	fe, err := NewFreqEstimator(FreqEstimatorResponsive, 800)
	require.NoError(t, err)
	assert.Equal(t, float32(1), fe.FreqCoeff())
}

func TestFreqEstimatorStableAtTarget(t *testing.T) {
	fe, err := NewFreqEstimator(FreqEstimatorResponsive, 800)
	require.NoError(t, err)

	for i := 0; i < 1024; i++ {
		fe.Update(800)
	}
	assert.InDelta(t, 1, float64(fe.FreqCoeff()), 1e-6)
}

func TestFreqEstimatorSpeedsUpOnHighLatency(t *testing.T) {
	fe, err := NewFreqEstimator(FreqEstimatorResponsive, 800)
	require.NoError(t, err)

	for i := 0; i < 1024; i++ {
		fe.Update(1600)
	}
	assert.Greater(t, fe.FreqCoeff(), float32(1),
		"latency above target raises the coefficient to drain the queue")
}

func TestFreqEstimatorSlowsDownOnLowLatency(t *testing.T) {
	fe, err := NewFreqEstimator(FreqEstimatorResponsive, 800)
	require.NoError(t, err)

	for i := 0; i < 1024; i++ {
		fe.Update(100)
	}
	assert.Less(t, fe.FreqCoeff(), float32(1))
}

func TestFreqEstimatorGradualIsSmoother(t *testing.T) {
	responsive, err := NewFreqEstimator(FreqEstimatorResponsive, 800)
	require.NoError(t, err)
	gradual, err := NewFreqEstimator(FreqEstimatorGradual, 800)
	require.NoError(t, err)

	for i := 0; i < 4096; i++ {
		responsive.Update(1600)
		gradual.Update(1600)
	}

	respDelta := math.Abs(float64(responsive.FreqCoeff()) - 1)
	gradDelta := math.Abs(float64(gradual.FreqCoeff()) - 1)
	assert.Greater(t, respDelta, 0.0)
	assert.LessOrEqual(t, gradDelta, respDelta)
}

func TestFreqEstimatorCoeffStaysNearUnity(t *testing.T) {
	fe, err := NewFreqEstimator(FreqEstimatorResponsive, 800)
	require.NoError(t, err)

	for i := 0; i < 2048; i++ {
		fe.Update(uint32(800 + 400*(i%2)))
	}
	coeff := float64(fe.FreqCoeff())
	assert.Greater(t, coeff, 0.9)
	assert.Less(t, coeff, 1.1)
}
