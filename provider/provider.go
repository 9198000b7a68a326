package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable is returned when a provider can not run on this host
	ErrUnavailable = errors.New("provider unavailable")
	// ErrUnknownProvider is returned for provider values or names that are
	// not recognised
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrPoolFull is returned when the task pool queue can not accept more
	// work without blocking
	ErrPoolFull = errors.New("task pool full")
	// ErrPoolClosed is returned when submitting to a closed pool or
	// controller
	ErrPoolClosed = errors.New("task pool closed")
)

// Provider identifies a detection backend
type Provider int

const (
	// Invalid means no provider is active
	Invalid Provider = -1
	// Automatic resolves to the best available provider on this host
	Automatic Provider = 0
	// NPUFaceDetection is RetinaFace running on the Rockchip NPU
	NPUFaceDetection Provider = 1
	// CascadeFaceDetection is the OpenCV Haar cascade face detector
	CascadeFaceDetection Provider = 2
)

// names maps providers to their settings names
var names = map[Provider]string{
	Invalid:              "invalid",
	Automatic:            "automatic",
	NPUFaceDetection:     "npu-facedetection",
	CascadeFaceDetection: "cascade-facedetection",
}

// String returns the settings name of the provider
func (p Provider) String() string {
	if name, ok := names[p]; ok {
		return name
	}
	return fmt.Sprintf("provider(%d)", int(p))
}

// Selectable reports if p may be passed to Controller.Select
func (p Provider) Selectable() bool {
	switch p {
	case Automatic, NPUFaceDetection, CascadeFaceDetection:
		return true
	}
	return false
}

// Parse returns the provider for a settings name.  Matching ignores case
// and surrounding space
func Parse(s string) (Provider, error) {

	s = strings.ToLower(strings.TrimSpace(s))

	for p, name := range names {
		if name == s && p != Invalid {
			return p, nil
		}
	}

	return Invalid, fmt.Errorf("%q: %w", s, ErrUnknownProvider)
}

// MarshalText implements encoding.TextMarshaler
func (p Provider) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Provider) UnmarshalText(text []byte) error {

	v, err := Parse(string(text))

	if err != nil {
		return err
	}

	*p = v
	return nil
}
