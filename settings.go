package autoframe

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/swdee/go-autoframe/provider"
	"github.com/swdee/go-autoframe/tracker"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the settings schema written by this package.  Files with
// an older version are migrated when loaded
const CurrentVersion = 2

// Measure is a length that is either absolute pixels or a fraction of the
// tracked target's size.  In settings files a percentage is written with a
// trailing percent sign, eg. "25%"
type Measure struct {
	Value   float32
	Percent bool
}

// Pixels returns an absolute Measure
func Pixels(v float32) Measure {
	return Measure{Value: v}
}

// Percent returns a Measure of pct percent of the target size
func Percent(pct float32) Measure {
	return Measure{Value: pct / 100, Percent: true}
}

// ParseMeasure parses "12", "12.5" or "25%"
func ParseMeasure(s string) (Measure, error) {

	s = strings.TrimSpace(s)
	pct := strings.HasSuffix(s, "%")

	if pct {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	v, err := strconv.ParseFloat(s, 32)

	if err != nil {
		return Measure{}, fmt.Errorf("invalid measure %q: %w", s, err)
	}

	if pct {
		return Percent(float32(v)), nil
	}

	return Pixels(float32(v)), nil
}

// String returns the settings file form of the measure
func (m Measure) String() string {
	if m.Percent {
		return strconv.FormatFloat(float64(m.Value)*100, 'g', -1, 32) + "%"
	}
	return strconv.FormatFloat(float64(m.Value), 'g', -1, 32)
}

// MarshalYAML implements yaml.Marshaler
func (m Measure) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.  A value that can not be
// parsed decodes as zero pixels rather than failing the whole file
func (m *Measure) UnmarshalYAML(node *yaml.Node) error {

	if node.Kind != yaml.ScalarNode {
		*m = Measure{}
		return nil
	}

	v, err := ParseMeasure(node.Value)

	if err != nil {
		v = Measure{}
	}

	*m = v
	return nil
}

// Settings are the user facing options of a Filter as stored in a settings
// file
type Settings struct {
	Version int `yaml:"version"`

	// TrackingMode is "solo" or "group"
	TrackingMode string `yaml:"tracking_mode"`
	// TrackingProvider is a provider name, see provider.Parse
	TrackingProvider string `yaml:"tracking_provider"`
	// TrackFrequency is the detection rate in Hz
	TrackFrequency float32 `yaml:"track_frequency"`
	// MaxAge is how long in seconds an unmatched track survives
	MaxAge float32 `yaml:"max_age"`
	// MatchDistance is the detection to track gate as a multiple of the
	// track's larger side
	MatchDistance float32 `yaml:"match_distance"`

	MotionSmoothing                 float32 `yaml:"motion_smoothing"`
	MotionSmoothingProcessNoise     float32 `yaml:"motion_smoothing_process_noise"`
	MotionSmoothingMeasurementNoise float32 `yaml:"motion_smoothing_measurement_noise"`
	MotionPredictionFactor          float32 `yaml:"motion_prediction_factor"`

	FrameStability                 float32 `yaml:"frame_stability"`
	FrameStabilityProcessNoise     float32 `yaml:"frame_stability_process_noise"`
	FrameStabilityMeasurementNoise float32 `yaml:"frame_stability_measurement_noise"`

	FramePaddingX Measure `yaml:"frame_padding_x"`
	FramePaddingY Measure `yaml:"frame_padding_y"`
	FrameOffsetX  Measure `yaml:"frame_offset_x"`
	FrameOffsetY  Measure `yaml:"frame_offset_y"`
	// FrameAspectRatio is "W:H" or a number, empty uses the output size
	FrameAspectRatio string `yaml:"frame_aspect_ratio"`

	DebugOverlay bool `yaml:"debug_overlay"`
	OutputWidth  int  `yaml:"output_width"`
	OutputHeight int  `yaml:"output_height"`

	// version 1 stored the percent flag of each measure separately
	LegacyPaddingXPercent *bool `yaml:"frame_padding_x_percent,omitempty"`
	LegacyPaddingYPercent *bool `yaml:"frame_padding_y_percent,omitempty"`
	LegacyOffsetXPercent  *bool `yaml:"frame_offset_x_percent,omitempty"`
	LegacyOffsetYPercent  *bool `yaml:"frame_offset_y_percent,omitempty"`
}

// DefaultSettings returns the settings of a new Filter
func DefaultSettings() Settings {
	return Settings{
		Version:                CurrentVersion,
		TrackingMode:           tracker.ModeGroup.String(),
		TrackingProvider:       provider.Automatic.String(),
		TrackFrequency:         20,
		MaxAge:                 1,
		MatchDistance:          1,
		MotionSmoothing:        0.5,
		MotionPredictionFactor: 0.1,
		FrameStability:         0.9,
		FramePaddingX:          Percent(50),
		FramePaddingY:          Percent(50),
	}
}

// LoadSettings reads a settings file
func LoadSettings(path string) (Settings, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	return ParseSettings(data)
}

// ParseSettings decodes settings over the defaults of the file's schema
// version, migrates older versions and clamps out of range values.  Only
// malformed YAML is an error.  A file without a version is read as version 1
// when it carries version 1 only keys, otherwise as the current version
func ParseSettings(data []byte) (Settings, error) {

	var head Settings

	if err := yaml.Unmarshal(data, &head); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}

	version := head.Version

	if version <= 0 {
		version = CurrentVersion

		if head.hasLegacyKeys() {
			version = 1
		}
	}

	s := defaultSettingsVersion(version)

	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}

	s.Version = version
	s.migrate()
	s.normalize()

	return s, nil
}

// defaultSettingsVersion returns the defaults expressed in the given schema
// version so keys missing from an old file survive migration unchanged
func defaultSettingsVersion(version int) Settings {

	s := DefaultSettings()

	if version >= 1 && version < CurrentVersion {
		s.Version = version
		s.MotionSmoothing *= 100
		s.FrameStability *= 100
	}

	return s
}

// Marshal encodes the settings in the current schema
func (s Settings) Marshal() ([]byte, error) {

	s.migrate()
	s.normalize()

	return yaml.Marshal(s)
}

// legacyProviders maps provider names used by version 1 files
var legacyProviders = map[string]provider.Provider{
	"auto":    provider.Automatic,
	"npu":     provider.NPUFaceDetection,
	"rknn":    provider.NPUFaceDetection,
	"cascade": provider.CascadeFaceDetection,
	"cpu":     provider.CascadeFaceDetection,
}

// hasLegacyKeys reports if any version 1 only key was decoded
func (s *Settings) hasLegacyKeys() bool {
	return s.LegacyPaddingXPercent != nil || s.LegacyPaddingYPercent != nil ||
		s.LegacyOffsetXPercent != nil || s.LegacyOffsetYPercent != nil
}

// migrate converts settings written by an older schema in place and drops
// keys the current schema no longer writes.  Version 0 is the zero value of
// Settings built in code and is taken as current
func (s *Settings) migrate() {

	if s.Version >= 1 && s.Version < CurrentVersion {
		s.migrateVersion1()
	}

	s.LegacyPaddingXPercent = nil
	s.LegacyPaddingYPercent = nil
	s.LegacyOffsetXPercent = nil
	s.LegacyOffsetYPercent = nil

	s.Version = CurrentVersion
}

// migrateVersion1 converts the version 1 schema
func (s *Settings) migrateVersion1() {

	// version 1 smoothing amounts were percentages
	s.MotionSmoothing /= 100
	s.FrameStability /= 100

	migrateMeasure(&s.FramePaddingX, s.LegacyPaddingXPercent)
	migrateMeasure(&s.FramePaddingY, s.LegacyPaddingYPercent)
	migrateMeasure(&s.FrameOffsetX, s.LegacyOffsetXPercent)
	migrateMeasure(&s.FrameOffsetY, s.LegacyOffsetYPercent)

	if p, ok := legacyProviders[strings.ToLower(strings.TrimSpace(s.TrackingProvider))]; ok {
		s.TrackingProvider = p.String()
	}
}

// migrateMeasure applies a version 1 percent flag whose value was 0..100
func migrateMeasure(m *Measure, percent *bool) {

	if percent == nil {
		return
	}

	if *percent && !m.Percent {
		m.Value /= 100
	}

	m.Percent = *percent
}

// normalize replaces unknown names and clamps numbers into range
func (s *Settings) normalize() {

	def := DefaultSettings()

	if _, ok := parseMode(s.TrackingMode); !ok {
		s.TrackingMode = def.TrackingMode
	}

	s.TrackingMode = strings.ToLower(strings.TrimSpace(s.TrackingMode))

	if p, err := provider.Parse(s.TrackingProvider); err != nil {
		s.TrackingProvider = def.TrackingProvider
	} else {
		s.TrackingProvider = p.String()
	}

	if !finite(s.TrackFrequency) || s.TrackFrequency <= 0 {
		s.TrackFrequency = def.TrackFrequency
	}

	s.TrackFrequency = clamp(s.TrackFrequency, tracker.MinTrackFrequency,
		tracker.MaxTrackFrequency)

	if !finite(s.MaxAge) || s.MaxAge <= 0 {
		s.MaxAge = def.MaxAge
	}

	if !finite(s.MatchDistance) || s.MatchDistance <= 0 {
		s.MatchDistance = def.MatchDistance
	}

	s.MotionSmoothing = clamp(s.MotionSmoothing, 0, 1)
	s.FrameStability = clamp(s.FrameStability, 0, 1)
	s.MotionPredictionFactor = clamp(s.MotionPredictionFactor, 0,
		tracker.MaxMotionPrediction)

	s.MotionSmoothingProcessNoise = clamp(s.MotionSmoothingProcessNoise, 0, math.MaxFloat32)
	s.MotionSmoothingMeasurementNoise = clamp(s.MotionSmoothingMeasurementNoise, 0, math.MaxFloat32)
	s.FrameStabilityProcessNoise = clamp(s.FrameStabilityProcessNoise, 0, math.MaxFloat32)
	s.FrameStabilityMeasurementNoise = clamp(s.FrameStabilityMeasurementNoise, 0, math.MaxFloat32)

	for _, m := range []*Measure{&s.FramePaddingX, &s.FramePaddingY,
		&s.FrameOffsetX, &s.FrameOffsetY} {
		if !finite(m.Value) {
			*m = Measure{}
		}
	}

	if _, err := ParseAspectRatio(s.FrameAspectRatio); err != nil {
		s.FrameAspectRatio = ""
	}

	if s.OutputWidth < 0 || s.OutputHeight < 0 {
		s.OutputWidth, s.OutputHeight = 0, 0
	}
}

// Mode returns the tracking mode
func (s Settings) Mode() tracker.Mode {
	m, _ := parseMode(s.TrackingMode)
	return m
}

// Provider returns the requested detection provider, Automatic when the
// name is not recognised
func (s Settings) Provider() provider.Provider {

	p, err := provider.Parse(s.TrackingProvider)

	if err != nil {
		return provider.Automatic
	}

	return p
}

// AspectRatio returns the width/height ratio, 0 when unset
func (s Settings) AspectRatio() float32 {
	r, _ := ParseAspectRatio(s.FrameAspectRatio)
	return r
}

// ToConfig returns the tracker configuration for a source of the given
// input size
func (s Settings) ToConfig(inputWidth, inputHeight int) tracker.Config {
	return tracker.Config{
		Mode:                   s.Mode(),
		TrackFrequency:         s.TrackFrequency,
		MaxAge:                 s.MaxAge,
		MatchDistance:          s.MatchDistance,
		MotionSmoothing:        s.MotionSmoothing,
		MotionProcessNoise:     s.MotionSmoothingProcessNoise,
		MotionMeasurementNoise: s.MotionSmoothingMeasurementNoise,
		MotionPrediction:       s.MotionPredictionFactor,
		FrameStability:         s.FrameStability,
		FrameProcessNoise:      s.FrameStabilityProcessNoise,
		FrameMeasurementNoise:  s.FrameStabilityMeasurementNoise,
		Padding:                tracker.Vec2{X: s.FramePaddingX.Value, Y: s.FramePaddingY.Value},
		PaddingPercent:         [2]bool{s.FramePaddingX.Percent, s.FramePaddingY.Percent},
		Offset:                 tracker.Vec2{X: s.FrameOffsetX.Value, Y: s.FrameOffsetY.Value},
		OffsetPercent:          [2]bool{s.FrameOffsetX.Percent, s.FrameOffsetY.Percent},
		AspectRatio:            s.AspectRatio(),
		InputSize:              tracker.Vec2{X: float32(inputWidth), Y: float32(inputHeight)},
		OutputSize:             tracker.Vec2{X: float32(s.OutputWidth), Y: float32(s.OutputHeight)},
	}
}

// ParseAspectRatio parses "16:9", "16/9" or "1.777".  The empty string
// returns 0 meaning the output size decides
func ParseAspectRatio(s string) (float32, error) {

	s = strings.TrimSpace(s)

	if s == "" {
		return 0, nil
	}

	if i := strings.IndexAny(s, ":/"); i >= 0 {

		w, err := strconv.ParseFloat(strings.TrimSpace(s[:i]), 32)

		if err != nil {
			return 0, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
		}

		h, err := strconv.ParseFloat(strings.TrimSpace(s[i+1:]), 32)

		if err != nil {
			return 0, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
		}

		return checkRatio(s, w/h)
	}

	r, err := strconv.ParseFloat(s, 32)

	if err != nil {
		return 0, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
	}

	return checkRatio(s, r)
}

func checkRatio(s string, r float64) (float32, error) {

	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return 0, fmt.Errorf("invalid aspect ratio %q", s)
	}

	return float32(r), nil
}

func parseMode(s string) (tracker.Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case tracker.ModeSolo.String():
		return tracker.ModeSolo, true
	case tracker.ModeGroup.String():
		return tracker.ModeGroup, true
	}
	return tracker.ModeGroup, false
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// clamp limits v to [lo,hi], NaN becomes lo
func clamp(v, lo, hi float32) float32 {
	switch {
	case math.IsNaN(float64(v)), v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
