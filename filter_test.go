package autoframe

import (
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-autoframe/provider"
	"github.com/swdee/go-autoframe/tracker"
)

const (
	waitFor = 2 * time.Second
	poll    = 5 * time.Millisecond
)

// stubBackend returns the same detections for every frame
type stubBackend struct {
	dets    []tracker.Detection
	detects *atomic.Int32
}

func (s *stubBackend) Load() error {
	return nil
}

func (s *stubBackend) Detect(img image.Image) ([]tracker.Detection, error) {
	s.detects.Add(1)
	return s.dets, nil
}

func (s *stubBackend) Close() error {
	return nil
}

func stubCapabilities(dets ...tracker.Detection) (*provider.Capabilities, *atomic.Int32) {

	detects := &atomic.Int32{}

	return provider.NewCapabilities(nil, provider.Factory{
		Provider: provider.CascadeFaceDetection,
		Name:     "stub",
		Rank:     1,
		New: func() (provider.Backend, error) {
			return &stubBackend{dets: dets, detects: detects}, nil
		},
	}), detects
}

// waitReady ticks f until its provider has loaded
func waitReady(t *testing.T, f *Filter) {
	t.Helper()

	require.Eventually(t, func() bool {
		f.VideoTick(0.01)
		_, state := f.Provider()
		return state == provider.StateReady
	}, waitFor, poll)
}

func TestNewFilterRequiresCapabilities(t *testing.T) {

	_, err := NewFilter(nil, DefaultSettings())
	assert.ErrorIs(t, err, ErrNoCapabilities)
}

func TestFilterFramesFace(t *testing.T) {

	caps, detects := stubCapabilities(tracker.NewDetection(350, 250, 450, 350, 0.9))

	s := DefaultSettings()
	s.TrackFrequency = 100
	s.FrameStability = 0
	s.MotionSmoothing = 0
	s.MotionPredictionFactor = 0

	f, err := NewFilter(caps, s, WithTrail(10))
	require.NoError(t, err)
	defer f.Close()

	waitReady(t, f)

	active, _ := f.Provider()
	assert.Equal(t, provider.CascadeFaceDetection, active)

	frame := image.NewRGBA(image.Rect(0, 0, 1280, 720))

	require.Eventually(t, func() bool {
		f.SubmitFrame(frame)
		w := f.VideoTick(0.02)
		return len(f.Snapshot().Targets) == 1 &&
			w.Position.X > 390 && w.Position.X < 410 &&
			w.Position.Y > 290 && w.Position.Y < 310
	}, waitFor, poll)

	assert.Positive(t, detects.Load())

	// the input size followed the frame
	width, height := f.OutputSize()
	assert.Equal(t, 1280, width)
	assert.Equal(t, 720, height)

	snap := f.Snapshot()
	require.Len(t, snap.Targets, 1)
	assert.NotEmpty(t, f.Trail().GetPoints(snap.Targets[0].Track.ID))

	// window is the padded face at the output aspect ratio
	w := f.Window()
	assert.InDelta(t, 200, w.Size.Y, 10)
	assert.InDelta(t, 200*16.0/9.0, w.Size.X, 10)

	dst := image.NewRGBA(image.Rect(0, 0, 320, 180))
	assert.NoError(t, f.Render(dst, frame))
}

func TestFilterWindowCenteredWithoutDetections(t *testing.T) {

	caps, _ := stubCapabilities()

	f, err := NewFilter(caps, DefaultSettings())
	require.NoError(t, err)
	defer f.Close()

	w := f.VideoTick(0.016)

	assert.InDelta(t, 960, w.Position.X, 1e-3)
	assert.InDelta(t, 540, w.Position.Y, 1e-3)
	assert.InDelta(t, 1920, w.Size.X, 1e-2)
	assert.InDelta(t, 1080, w.Size.Y, 1e-2)
}

func TestFilterUnavailableProvider(t *testing.T) {

	caps := provider.NewCapabilities(nil)

	f, err := NewFilter(caps, DefaultSettings())
	require.NoError(t, err)
	defer f.Close()

	require.Eventually(t, func() bool {
		f.VideoTick(0.01)
		_, state := f.Provider()
		return state == provider.StateFailed
	}, waitFor, poll)

	assert.ErrorIs(t, f.ProviderErr(), provider.ErrUnavailable)

	// still publishes a window
	assert.True(t, f.VideoTick(0.01).Valid())
	assert.False(t, f.SubmitFrame(image.NewRGBA(image.Rect(0, 0, 64, 64))))
}

func TestFilterUpdate(t *testing.T) {

	caps, _ := stubCapabilities()

	f, err := NewFilter(caps, DefaultSettings())
	require.NoError(t, err)
	defer f.Close()

	s := DefaultSettings()
	s.TrackingMode = "SOLO"
	s.FrameAspectRatio = "1:1"
	s.MotionSmoothing = 7

	require.NoError(t, f.Update(s))

	got := f.Settings()
	assert.Equal(t, tracker.ModeSolo, got.Mode())
	assert.Equal(t, float32(1), got.MotionSmoothing)

	width, height := f.OutputSize()
	assert.Equal(t, 1080, width)
	assert.Equal(t, 1080, height)

	f.SetInputSize(640, 480)
	width, height = f.OutputSize()
	assert.Equal(t, 480, width)
	assert.Equal(t, 480, height)
}

func TestFilterClose(t *testing.T) {

	caps, _ := stubCapabilities()

	f, err := NewFilter(caps, DefaultSettings())
	require.NoError(t, err)

	waitReady(t, f)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	assert.ErrorIs(t, f.Update(DefaultSettings()), ErrClosed)
	assert.ErrorIs(t, f.Render(image.NewRGBA(image.Rect(0, 0, 8, 8)), image.NewRGBA(image.Rect(0, 0, 8, 8))), ErrClosed)
	assert.False(t, f.SubmitFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))))

	// ticks after close keep returning the last window
	assert.True(t, f.VideoTick(0.01).Valid())
}
