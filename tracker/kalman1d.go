package tracker

// DefaultEstimateVariance is the initial estimate variance given to newly
// seeded filters
const DefaultEstimateVariance = 1.0

// Kalman1D is a single dimension Kalman filter used to smooth one scalar
// component (an axis of a position or size) over time
type Kalman1D struct {
	// q is the process noise coefficient
	q float32
	// r is the measurement noise coefficient
	r float32
	// p is the estimate variance
	p float32
	// x is the current estimate
	x float32
	// k is the gain used by the last update
	k float32
}

// NewKalman1D returns a filter seeded at value with the given estimate
// variance.  Negative coefficients are clamped to zero
func NewKalman1D(processNoise, measurementNoise, variance, value float32) Kalman1D {
	return Kalman1D{
		q: nonNegative(processNoise),
		r: nonNegative(measurementNoise),
		p: nonNegative(variance),
		x: value,
	}
}

// Predict advances the estimate without a measurement by growing the
// variance with the process noise
func (kf *Kalman1D) Predict() {
	kf.p += kf.q
}

// Update blends measurement into the estimate weighted by the ratio of
// estimate variance to total variance and returns the new estimate
func (kf *Kalman1D) Update(measurement float32) float32 {

	denom := kf.p + kf.r

	if denom > 0 {
		kf.k = kf.p / denom
	} else {
		// no uncertainty on either side, take the measurement as is
		kf.k = 1
	}

	kf.x += kf.k * (measurement - kf.x)
	kf.p = (1 - kf.k) * kf.p

	return kf.x
}

// Filter runs Predict followed by Update and returns the new estimate
func (kf *Kalman1D) Filter(measurement float32) float32 {
	kf.Predict()
	return kf.Update(measurement)
}

// Reset re-seeds the filter at value with the default estimate variance
func (kf *Kalman1D) Reset(value float32) {
	kf.x = value
	kf.p = DefaultEstimateVariance
	kf.k = 0
}

// Get returns the current estimate
func (kf *Kalman1D) Get() float32 {
	return kf.x
}

// Variance returns the current estimate variance
func (kf *Kalman1D) Variance() float32 {
	return kf.p
}

// Gain returns the gain applied by the last Update
func (kf *Kalman1D) Gain() float32 {
	return kf.k
}

// NoiseFromSmoothing derives process and measurement noise coefficients from
// a smoothing amount in the range [0,1].  Zero keeps the filter responsive,
// one smooths heavily.  Explicit coefficients greater than zero take
// precedence over the derived ones
func NoiseFromSmoothing(smoothing, processNoise, measurementNoise float32) (float32, float32) {

	s := clamp32(smoothing, 0, 1)

	q := lerp32(1, 1e-3, s)
	r := lerp32(1e-3, 1, s)

	if processNoise > 0 {
		q = processNoise
	}

	if measurementNoise > 0 {
		r = measurementNoise
	}

	return q, r
}

func nonNegative(v float32) float32 {
	if v < 0 || !finite(v) {
		return 0
	}
	return v
}
