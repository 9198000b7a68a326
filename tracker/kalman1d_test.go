package tracker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestKalman1DConvergence feeds a constant measurement and expects the
// estimate to approach it monotonically while the variance never grows
func TestKalman1DConvergence(t *testing.T) {

	const target = 10.0

	kf := NewKalman1D(0.1, 0.1, DefaultEstimateVariance, 0)

	prevErr := math.Abs(float64(target - kf.Get()))
	prevVar := kf.Variance()

	for i := 0; i < 50; i++ {
		kf.Filter(target)

		err := math.Abs(float64(target - kf.Get()))

		require.LessOrEqual(t, err, prevErr, "estimate moved away at update %d", i)
		require.LessOrEqual(t, kf.Variance(), prevVar, "variance grew at update %d", i)
		require.GreaterOrEqual(t, kf.Variance(), float32(0))

		prevErr = err
		prevVar = kf.Variance()
	}

	assert.Less(t, prevErr, 1e-3)
}

func TestKalman1DPredictUpdate(t *testing.T) {

	kf := NewKalman1D(0.5, 1.5, 1.0, 4)

	kf.Predict()
	assert.InDelta(t, 1.5, kf.Variance(), 1e-6)

	// gain is 1.5 / (1.5 + 1.5)
	got := kf.Update(8)
	assert.InDelta(t, 0.5, kf.Gain(), 1e-6)
	assert.InDelta(t, 6, got, 1e-6)
	assert.InDelta(t, 0.75, kf.Variance(), 1e-6)
}

func TestKalman1DZeroNoise(t *testing.T) {

	kf := NewKalman1D(0, 0, 0, 3)

	// no uncertainty anywhere takes the measurement
	assert.Equal(t, float32(7), kf.Filter(7))
	assert.Equal(t, float32(0), kf.Variance())
}

func TestKalman1DNegativeCoefficients(t *testing.T) {

	kf := NewKalman1D(-1, -2, -3, 1)

	for i := 0; i < 10; i++ {
		kf.Filter(float32(i))
		assert.GreaterOrEqual(t, kf.Variance(), float32(0))
	}
}

func TestKalman1DReset(t *testing.T) {

	kf := NewKalman1D(0.1, 0.1, 0.01, 0)
	kf.Filter(100)
	kf.Reset(42)

	assert.Equal(t, float32(42), kf.Get())
	assert.Equal(t, float32(DefaultEstimateVariance), kf.Variance())
}

func TestNoiseFromSmoothing(t *testing.T) {

	tests := []struct {
		name             string
		smoothing        float32
		process, measure float32
		wantQ, wantR     float32
	}{
		{"responsive", 0, 0, 0, 1, 1e-3},
		{"smooth", 1, 0, 0, 1e-3, 1},
		{"clamped high", 5, 0, 0, 1e-3, 1},
		{"clamped low", -5, 0, 0, 1, 1e-3},
		{"explicit process", 0, 0.25, 0, 0.25, 1e-3},
		{"explicit both", 0.5, 0.2, 0.3, 0.2, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, r := NoiseFromSmoothing(tt.smoothing, tt.process, tt.measure)
			assert.InDelta(t, tt.wantQ, q, 1e-6)
			assert.InDelta(t, tt.wantR, r, 1e-6)
		})
	}
}

// TestKalman1DSmoothingOrder checks heavier smoothing reacts slower to a
// step change
func TestKalman1DSmoothingOrder(t *testing.T) {

	step := func(s float32) float32 {
		q, r := NoiseFromSmoothing(s, 0, 0)
		kf := NewKalman1D(q, r, DefaultEstimateVariance, 0)

		// settle on zero then step
		for i := 0; i < 20; i++ {
			kf.Filter(0)
		}

		return kf.Filter(100)
	}

	low, mid, high := step(0), step(0.5), step(0.95)

	assert.Greater(t, low, mid)
	assert.Greater(t, mid, high)
}
