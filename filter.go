package autoframe

import (
	"errors"
	"image"
	"math"
	"sync"

	"github.com/swdee/go-autoframe/provider"
	"github.com/swdee/go-autoframe/tracker"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Filter methods called after Close
	ErrClosed = errors.New("filter closed")
	// ErrNoCapabilities is returned by NewFilter without a Capabilities
	// service
	ErrNoCapabilities = errors.New("capabilities required")
)

// Filter is one autoframing instance.  It glues a provider Controller
// feeding detections into a tracker Engine and crops video frames to the
// resulting window.  VideoTick, SubmitFrame and Render are expected to be
// called from the video thread but are safe for concurrent use
type Filter struct {
	log       *zap.Logger
	pool      *provider.Pool
	trailSize int

	caps   *provider.Capabilities
	ctrl   *provider.Controller
	trail  *tracker.Trail
	engine *tracker.Engine

	// mu guards the fields below and serialises access to engine
	mu       sync.Mutex
	settings Settings
	inputW   int
	inputH   int
	closed   bool
}

// NewFilter returns a Filter with the given settings and requests the
// settings' provider.  The provider loads in the background, until then
// the window stays centered on the input
func NewFilter(caps *provider.Capabilities, settings Settings,
	opts ...Option) (*Filter, error) {

	if caps == nil {
		return nil, ErrNoCapabilities
	}

	f := &Filter{
		log:  zap.NewNop(),
		caps: caps,
	}

	for _, opt := range opts {
		opt(f)
	}

	ctrlOpts := []provider.Option{provider.WithLogger(f.log.Named("provider"))}

	if f.pool != nil {
		ctrlOpts = append(ctrlOpts, provider.WithPool(f.pool))
	}

	f.ctrl = provider.NewController(caps, ctrlOpts...)

	engOpts := []tracker.EngineOption{tracker.WithLogger(f.log.Named("tracker"))}

	if f.trailSize > 0 {
		f.trail = tracker.NewTrail(f.trailSize)
		engOpts = append(engOpts, tracker.WithTrail(f.trail))
	}

	settings.migrate()
	settings.normalize()

	in := tracker.DefaultConfig().InputSize
	f.settings = settings
	f.inputW, f.inputH = int(in.X), int(in.Y)
	f.engine = tracker.NewEngine(settings.ToConfig(f.inputW, f.inputH), f.ctrl, engOpts...)

	if err := f.ctrl.Select(settings.Provider()); err != nil {
		f.ctrl.Close()
		return nil, err
	}

	f.log.Info("filter created",
		zap.String("mode", settings.TrackingMode),
		zap.String("provider", settings.TrackingProvider),
	)

	return f, nil
}

// Settings returns the normalized settings in use
func (f *Filter) Settings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.settings
}

// Update applies new settings.  Tracks survive the change, a different
// provider is switched to in the background.  When that switch can not be
// queued the settings still apply, the error is returned and VideoTick
// retries the switch
func (f *Filter) Update(s Settings) error {

	s.migrate()
	s.normalize()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	f.settings = s
	f.engine.SetConfig(s.ToConfig(f.inputW, f.inputH))

	return f.ctrl.Select(s.Provider())
}

// SetInputSize sets the source frame dimensions.  A change recenters the
// window
func (f *Filter) SetInputSize(width, height int) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.setInputSizeLocked(width, height)
}

func (f *Filter) setInputSizeLocked(width, height int) {

	if width <= 0 || height <= 0 || (width == f.inputW && height == f.inputH) {
		return
	}

	f.inputW, f.inputH = width, height
	f.engine.SetConfig(f.settings.ToConfig(width, height))

	f.log.Debug("input size changed", zap.Int("width", width), zap.Int("height", height))
}

// VideoTick advances tracking by seconds and returns the window to render.
// It never blocks on detection
func (f *Filter) VideoTick(seconds float32) tracker.Window {

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.engine.Window()
	}

	f.ctrl.Tick()

	return f.engine.Tick(seconds)
}

// Window returns the window published by the last VideoTick
func (f *Filter) Window() tracker.Window {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.engine.Window()
}

// OutputSize returns the dimensions of the rendered output
func (f *Filter) OutputSize() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.engine.Config().OutputSize

	return int(math.Round(float64(out.X))), int(math.Round(float64(out.Y)))
}

// SubmitFrame hands img to the detection backend.  The input size follows
// the frame.  False is returned when the frame was dropped because the
// backend is loading or still busy with an earlier frame
func (f *Filter) SubmitFrame(img image.Image) bool {

	if img == nil {
		return false
	}

	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()
		return false
	}

	b := img.Bounds()
	f.setInputSizeLocked(b.Dx(), b.Dy())
	f.mu.Unlock()

	return f.ctrl.SubmitFrame(img)
}

// Render crops the current window of src into dst
func (f *Filter) Render(dst *image.RGBA, src image.Image) error {

	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}

	w := f.engine.Window()
	f.mu.Unlock()

	return Crop(dst, src, w)
}

// Snapshot returns a copy of the tracker state for display
func (f *Filter) Snapshot() tracker.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.engine.Snapshot()
}

// Trail returns the track center history, nil unless WithTrail was given
func (f *Filter) Trail() *tracker.Trail {
	return f.trail
}

// Provider returns the active provider and the state of the controller
func (f *Filter) Provider() (provider.Provider, provider.State) {
	return f.ctrl.Active(), f.ctrl.State()
}

// ProviderErr returns the error of the last failed provider switch
func (f *Filter) ProviderErr() error {
	return f.ctrl.Err()
}

// Reset drops all tracks and recenters the window
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.engine.Reset()
}

// Close unloads the detection backend once running work has finished
func (f *Filter) Close() error {

	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()
		return nil
	}

	f.closed = true
	f.mu.Unlock()

	return f.ctrl.Close()
}
