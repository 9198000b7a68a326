package provider

import (
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-autoframe/tracker"
)

const (
	waitFor = 2 * time.Second
	poll    = 5 * time.Millisecond
)

// fakeBackend records calls and can hold Load until released
type fakeBackend struct {
	hold    chan struct{}
	loadErr error
	dets    []tracker.Detection
	stats   *fakeStats
}

type fakeStats struct {
	opened  atomic.Int32
	loaded  atomic.Int32
	closed  atomic.Int32
	detects atomic.Int32
}

func (f *fakeBackend) Load() error {
	if f.hold != nil {
		<-f.hold
	}

	if f.loadErr != nil {
		return f.loadErr
	}

	f.stats.loaded.Add(1)
	return nil
}

func (f *fakeBackend) Detect(img image.Image) ([]tracker.Detection, error) {
	f.stats.detects.Add(1)
	return f.dets, nil
}

func (f *fakeBackend) Close() error {
	f.stats.closed.Add(1)
	return nil
}

// fakeFactory returns a factory whose backends share stats
func fakeFactory(p Provider, rank int, tmpl fakeBackend) (Factory, *fakeStats) {

	stats := &fakeStats{}

	return Factory{
		Provider: p,
		Name:     "fake " + p.String(),
		Rank:     rank,
		New: func() (Backend, error) {
			stats.opened.Add(1)
			b := tmpl
			b.stats = stats
			return &b, nil
		},
	}, stats
}

// waitState ticks the controller until it reaches want
func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()

	require.Eventually(t, func() bool {
		c.Tick()
		return c.State() == want
	}, waitFor, poll, "controller never reached %s", want)
}

func TestControllerSelectDoesNotBlock(t *testing.T) {

	hold := make(chan struct{})
	f, stats := fakeFactory(NPUFaceDetection, 20, fakeBackend{hold: hold})

	c := NewController(NewCapabilities(nil, f))
	defer c.Close()

	start := time.Now()
	require.NoError(t, c.Select(NPUFaceDetection))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// load is still held
	c.Tick()
	assert.Equal(t, StateSwitching, c.State())
	assert.False(t, c.Ready())
	assert.Equal(t, Invalid, c.Active())
	assert.Equal(t, NPUFaceDetection, c.Desired())
	assert.Equal(t, tracker.Batch{}, c.Poll())

	close(hold)
	waitState(t, c, StateReady)

	assert.True(t, c.Ready())
	assert.True(t, c.Available())
	assert.Equal(t, NPUFaceDetection, c.Active())
	assert.Equal(t, int32(1), stats.loaded.Load())
}

func TestControllerReselectIsIdempotent(t *testing.T) {

	hold := make(chan struct{})
	f, stats := fakeFactory(NPUFaceDetection, 20, fakeBackend{hold: hold})

	c := NewController(NewCapabilities(nil, f))
	defer c.Close()

	require.NoError(t, c.Select(NPUFaceDetection))
	require.NoError(t, c.Select(NPUFaceDetection))

	close(hold)
	waitState(t, c, StateReady)

	require.NoError(t, c.Select(NPUFaceDetection))
	require.NoError(t, c.Select(Automatic))

	// give any wrongly queued switch a chance to run
	time.Sleep(20 * time.Millisecond)
	c.Tick()

	assert.Equal(t, int32(1), stats.opened.Load())
	assert.Equal(t, int32(0), stats.closed.Load())
	assert.Equal(t, StateReady, c.State())
}

func TestControllerLastSelectionWins(t *testing.T) {

	hold := make(chan struct{})
	npu, npuStats := fakeFactory(NPUFaceDetection, 20, fakeBackend{hold: hold})
	cascade, cascadeStats := fakeFactory(CascadeFaceDetection, 10, fakeBackend{})

	c := NewController(NewCapabilities(nil, npu, cascade))
	defer c.Close()

	require.NoError(t, c.Select(NPUFaceDetection))
	require.NoError(t, c.Select(CascadeFaceDetection))

	close(hold)

	require.Eventually(t, func() bool {
		c.Tick()
		return c.State() == StateReady && c.Active() == CascadeFaceDetection
	}, waitFor, poll)

	assert.Equal(t, int32(1), npuStats.opened.Load())
	assert.Equal(t, int32(1), npuStats.closed.Load(), "superseded backend is unloaded")
	assert.Equal(t, int32(1), cascadeStats.loaded.Load())
}

func TestControllerLoadFailure(t *testing.T) {

	loadErr := errors.New("model missing")
	f, stats := fakeFactory(NPUFaceDetection, 20, fakeBackend{loadErr: loadErr})

	c := NewController(NewCapabilities(nil, f))
	defer c.Close()

	require.NoError(t, c.Select(NPUFaceDetection))
	waitState(t, c, StateFailed)

	assert.False(t, c.Ready())
	assert.False(t, c.Available())
	assert.Equal(t, Invalid, c.Active())
	assert.ErrorIs(t, c.Err(), loadErr)
	assert.Equal(t, int32(1), stats.closed.Load(), "failed backend is closed")
	assert.Equal(t, tracker.Batch{}, c.Poll())
	assert.False(t, c.SubmitFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))))
}

func TestControllerUnavailableProvider(t *testing.T) {

	f, stats := fakeFactory(NPUFaceDetection, 20, fakeBackend{})
	f.Probe = func() error { return errors.New("no device") }

	c := NewController(NewCapabilities(nil, f))
	defer c.Close()

	assert.False(t, c.IsAvailable(NPUFaceDetection))
	assert.Equal(t, Invalid, c.IdealProvider())

	require.NoError(t, c.Select(Automatic))
	waitState(t, c, StateFailed)

	assert.ErrorIs(t, c.Err(), ErrUnavailable)
	assert.Equal(t, int32(0), stats.opened.Load())
}

func TestControllerSelectInvalid(t *testing.T) {

	c := NewController(NewCapabilities(nil))
	defer c.Close()

	assert.ErrorIs(t, c.Select(Invalid), ErrUnknownProvider)
	assert.ErrorIs(t, c.Select(Provider(42)), ErrUnknownProvider)
	assert.Equal(t, StateIdle, c.State())
}

func TestControllerDetection(t *testing.T) {

	dets := []tracker.Detection{
		tracker.NewDetection(10, 10, 50, 60, 0.9),
	}
	f, stats := fakeFactory(CascadeFaceDetection, 10, fakeBackend{dets: dets})

	c := NewController(NewCapabilities(nil, f))
	defer c.Close()

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))

	assert.False(t, c.SubmitFrame(img), "frames are dropped before ready")

	require.NoError(t, c.Select(Automatic))
	waitState(t, c, StateReady)
	assert.Equal(t, CascadeFaceDetection, c.Active())

	require.True(t, c.SubmitFrame(img))

	require.Eventually(t, func() bool {
		return c.Poll().Seq == 1
	}, waitFor, poll)

	batch := c.Poll()
	assert.Equal(t, "cascade-facedetection", batch.Provider)
	assert.Equal(t, dets, batch.Detections)

	// poll does not consume the batch
	assert.Equal(t, batch, c.Poll())

	require.Eventually(t, func() bool {
		return c.SubmitFrame(img)
	}, waitFor, poll)

	require.Eventually(t, func() bool {
		return c.Poll().Seq == 2
	}, waitFor, poll)

	assert.Equal(t, int32(2), stats.detects.Load())
}

func TestControllerClose(t *testing.T) {

	f, stats := fakeFactory(CascadeFaceDetection, 10, fakeBackend{})

	c := NewController(NewCapabilities(nil, f))

	require.NoError(t, c.Select(CascadeFaceDetection))
	waitState(t, c, StateReady)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.False(t, c.Ready())
	assert.Equal(t, int32(1), stats.closed.Load())
	assert.ErrorIs(t, c.Select(CascadeFaceDetection), ErrPoolClosed)
	assert.False(t, c.SubmitFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))))
}

func TestControllerSharedPool(t *testing.T) {

	pool := NewPool(1, 4)
	defer pool.Close()

	f, _ := fakeFactory(CascadeFaceDetection, 10, fakeBackend{})
	caps := NewCapabilities(nil, f)

	a := NewController(caps, WithPool(pool))
	b := NewController(caps, WithPool(pool))

	require.NoError(t, a.Select(Automatic))
	require.NoError(t, b.Select(Automatic))

	waitState(t, a, StateReady)
	waitState(t, b, StateReady)

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	// shared pool still accepts work
	assert.NoError(t, pool.Submit(func() {}))
}

// TestControllerRetriesQueueFull selects while the pool queue is full and
// expects Tick to queue the switch once the pool has room
func TestControllerRetriesQueueFull(t *testing.T) {

	pool := NewPool(1, 1)
	defer pool.Close()

	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))

	<-started
	require.NoError(t, pool.Submit(func() {}))

	f, stats := fakeFactory(CascadeFaceDetection, 10, fakeBackend{})

	c := NewController(NewCapabilities(nil, f), WithPool(pool))
	defer c.Close()

	require.ErrorIs(t, c.Select(CascadeFaceDetection), ErrPoolFull)

	c.Tick()
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, CascadeFaceDetection, c.Desired())

	close(release)
	waitState(t, c, StateReady)

	assert.Equal(t, CascadeFaceDetection, c.Active())
	assert.Equal(t, int32(1), stats.loaded.Load())
}
