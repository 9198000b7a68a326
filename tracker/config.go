package tracker

import "fmt"

// Mode selects how tracked targets are framed
type Mode int

const (
	// ModeSolo frames a single target
	ModeSolo Mode = 0
	// ModeGroup frames the union of all tracked targets
	ModeGroup Mode = 1
)

// String returns the settings name of the mode
func (m Mode) String() string {
	switch m {
	case ModeSolo:
		return "solo"
	case ModeGroup:
		return "group"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// limits applied by Normalize
const (
	// MinTrackFrequency is the lowest detection rate in Hz accepted
	MinTrackFrequency = 0.1
	// MaxTrackFrequency is the highest detection rate in Hz accepted
	MaxTrackFrequency = 240
	// MaxMotionPrediction is the largest velocity lookahead in seconds
	MaxMotionPrediction = 10
	// minAgePeriods is the number of detection periods a track survives
	// without a match at minimum
	minAgePeriods = 1.5
)

// Config holds the tunables of the Engine
type Config struct {
	// Mode is SOLO or GROUP framing
	Mode Mode
	// TrackFrequency is how often in Hz new detections are ingested
	TrackFrequency float32
	// MaxAge is the time in seconds an unmatched track survives
	MaxAge float32
	// MatchDistance is the gate for matching a detection to a track as a
	// multiple of the track's larger side
	MatchDistance float32

	// MotionSmoothing is the per track position smoothing amount [0,1]
	MotionSmoothing float32
	// MotionProcessNoise overrides the derived process noise when > 0
	MotionProcessNoise float32
	// MotionMeasurementNoise overrides the derived measurement noise when > 0
	MotionMeasurementNoise float32
	// MotionPrediction is the velocity lookahead factor, 0 disables prediction
	MotionPrediction float32

	// FrameStability is the frame window smoothing amount [0,1]
	FrameStability float32
	// FrameProcessNoise overrides the derived process noise when > 0
	FrameProcessNoise float32
	// FrameMeasurementNoise overrides the derived measurement noise when > 0
	FrameMeasurementNoise float32

	// Padding added to each side of a track, per axis
	Padding Vec2
	// PaddingPercent marks a padding axis as a fraction of the track size
	PaddingPercent [2]bool
	// Offset moves a track's framing position, per axis
	Offset Vec2
	// OffsetPercent marks an offset axis as a fraction of the track size
	OffsetPercent [2]bool
	// AspectRatio is the target width/height ratio, <= 0 uses the output
	// size ratio
	AspectRatio float32

	// InputSize is the source frame dimensions
	InputSize Vec2
	// OutputSize is the rendered output dimensions, zero derives it from the
	// input size and aspect ratio
	OutputSize Vec2
}

// DefaultConfig returns the default Engine configuration for a 1920x1080
// source
func DefaultConfig() Config {
	return Config{
		Mode:             ModeGroup,
		TrackFrequency:   20,
		MaxAge:           1.0,
		MatchDistance:    1.0,
		MotionSmoothing:  0.5,
		MotionPrediction: 0.1,
		FrameStability:   0.9,
		Padding:          Vec2{X: 0.5, Y: 0.5},
		PaddingPercent:   [2]bool{true, true},
		InputSize:        Vec2{X: 1920, Y: 1080},
	}
}

// Normalize clamps out of range values to safe ones and derives the output
// size.  Configuration is never rejected
func (c Config) Normalize() Config {

	def := DefaultConfig()

	if c.Mode != ModeSolo && c.Mode != ModeGroup {
		c.Mode = def.Mode
	}

	if !finite(c.TrackFrequency) {
		c.TrackFrequency = def.TrackFrequency
	}

	c.TrackFrequency = clamp32(c.TrackFrequency, MinTrackFrequency, MaxTrackFrequency)

	if !finite(c.MatchDistance) || c.MatchDistance <= 0 {
		c.MatchDistance = def.MatchDistance
	}

	if !finite(c.MaxAge) || c.MaxAge <= 0 {
		c.MaxAge = def.MaxAge
	}

	c.MaxAge = max32(c.MaxAge, minAgePeriods/c.TrackFrequency)

	c.MotionSmoothing = clamp32(zeroIfNaN(c.MotionSmoothing), 0, 1)
	c.MotionProcessNoise = nonNegative(c.MotionProcessNoise)
	c.MotionMeasurementNoise = nonNegative(c.MotionMeasurementNoise)
	c.MotionPrediction = clamp32(zeroIfNaN(c.MotionPrediction), 0, MaxMotionPrediction)

	c.FrameStability = clamp32(zeroIfNaN(c.FrameStability), 0, 1)
	c.FrameProcessNoise = nonNegative(c.FrameProcessNoise)
	c.FrameMeasurementNoise = nonNegative(c.FrameMeasurementNoise)

	if !c.Padding.Finite() {
		c.Padding = Vec2{}
	}

	if !c.Offset.Finite() {
		c.Offset = Vec2{}
	}

	if !finite(c.AspectRatio) || c.AspectRatio < 0 {
		c.AspectRatio = 0
	}

	if !c.InputSize.Positive() {
		c.InputSize = def.InputSize
	}

	if !c.OutputSize.Positive() {
		c.OutputSize = fitInside(c.InputSize, c.AspectRatio)
	}

	return c
}

// Period returns the detection period in seconds
func (c Config) Period() float32 {
	return 1 / clamp32(c.TrackFrequency, MinTrackFrequency, MaxTrackFrequency)
}

// TargetAspect returns the width/height ratio all framing is corrected to
func (c Config) TargetAspect() float32 {

	if c.AspectRatio > 0 {
		return c.AspectRatio
	}

	if c.OutputSize.Positive() {
		return c.OutputSize.X / c.OutputSize.Y
	}

	return c.InputSize.X / c.InputSize.Y
}

// fitInside returns the largest size of the given aspect ratio that fits
// within bounds.  A ratio <= 0 returns bounds
func fitInside(bounds Vec2, ratio float32) Vec2 {

	if ratio <= 0 {
		return bounds
	}

	size := Vec2{X: bounds.X, Y: bounds.X / ratio}

	if size.Y > bounds.Y {
		size = Vec2{X: bounds.Y * ratio, Y: bounds.Y}
	}

	return size
}

func zeroIfNaN(v float32) float32 {
	if !finite(v) {
		return 0
	}
	return v
}
