package provider

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swdee/go-autoframe/tracker"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Controller
type State int

const (
	// StateIdle means no provider has been selected yet
	StateIdle State = iota
	// StateSwitching means a switch task is queued or running
	StateSwitching
	// StateReady means the active provider is loaded and detecting
	StateReady
	// StateFailed means the last switch failed and no provider is active
	StateFailed
)

// String returns a readable name of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSwitching:
		return "switching"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Completion is posted by a switch task when it finishes
type Completion struct {
	// Requested is the provider that was selected
	Requested Provider
	// Provider is the provider now loaded, Invalid on failure
	Provider Provider
	// Err is the reason the switch failed
	Err error
	// Took is how long the switch took
	Took time.Duration
}

// Controller owns the detection backend of one filter instance.  Switching
// providers and running inference happen on pool workers, every method
// called from the video tick returns without waiting on them
type Controller struct {
	caps    *Capabilities
	pool    *Pool
	ownPool bool
	log     *zap.Logger

	// mu guards the tick side bookkeeping below
	mu        sync.Mutex
	active    Provider
	desired   Provider
	switching bool
	state     State
	lastErr   error
	closed    bool

	// provMu is the provider lock serialising switch and inference tasks,
	// it guards backend
	provMu  sync.Mutex
	backend Backend
	loaded  Provider

	// ready is set only after a backend finished loading
	ready atomic.Bool
	// retry is set while the desired provider could not be queued
	retry atomic.Bool
	// busy is set while an inference task is queued or running
	busy     atomic.Bool
	seq      atomic.Uint64
	done     Mailbox[Completion]
	batches  Mailbox[tracker.Batch]
	inflight sync.WaitGroup
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger for provider switch and inference events
func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithPool runs tasks on a shared pool instead of one owned by the
// Controller.  A shared pool is not closed by Controller.Close
func WithPool(p *Pool) Option {
	return func(c *Controller) {
		c.pool = p
	}
}

// NewController returns a Controller with no provider active
func NewController(caps *Capabilities, opts ...Option) *Controller {

	c := &Controller{
		caps:    caps,
		log:     zap.NewNop(),
		active:  Invalid,
		desired: Invalid,
		loaded:  Invalid,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.pool == nil {
		c.pool = NewPool(DefaultPoolSize, DefaultPoolSize*2)
		c.ownPool = true
	}

	return c
}

// Select requests provider p.  The switch happens asynchronously and is
// applied by a later Tick.  Selecting the provider already active or
// already being switched to does nothing.  When the switch can not be
// queued the error is returned and Tick keeps retrying it
func (c *Controller) Select(p Provider) error {

	if !p.Selectable() {
		return fmt.Errorf("select %s: %w", p, ErrUnknownProvider)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrPoolClosed
	}

	c.desired = p

	if c.switching {
		// re-issued by Tick once the running switch completes
		return nil
	}

	return c.switchLocked()
}

// switchLocked queues a switch to the desired provider unless it is already
// active.  c.mu must be held
func (c *Controller) switchLocked() error {

	target, err := c.caps.Resolve(c.desired)

	if err == nil && target == c.active && c.ready.Load() {
		c.retry.Store(false)
		return nil
	}

	requested := c.desired
	c.inflight.Add(1)

	err = c.pool.Submit(func() {
		defer c.inflight.Done()
		c.switchTask(requested)
	})

	if err != nil {
		c.inflight.Done()
		c.retry.Store(true)
		return fmt.Errorf("error queuing switch to %s: %w", requested, err)
	}

	c.retry.Store(false)
	c.switching = true
	c.state = StateSwitching

	c.log.Debug("provider switch queued",
		zap.Stringer("requested", requested),
		zap.Stringer("active", c.active),
	)

	return nil
}

// switchTask runs on a pool worker.  It unloads the current backend,
// loads the requested one and posts the outcome
func (c *Controller) switchTask(requested Provider) {

	start := time.Now()

	c.provMu.Lock()
	defer c.provMu.Unlock()

	c.ready.Store(false)
	c.unloadLocked()

	msg := Completion{Requested: requested, Provider: Invalid}

	b, err := c.caps.Open(requested)

	if err == nil {
		if err = b.Load(); err != nil {
			_ = b.Close()
			err = fmt.Errorf("error loading %s: %w", requested, err)
		}
	}

	if err == nil {
		target, _ := c.caps.Resolve(requested)
		c.backend = b
		c.loaded = target
		msg.Provider = target

		// publish only after the backend is fully loaded
		c.ready.Store(true)
	}

	msg.Err = err
	msg.Took = time.Since(start)

	c.done.Post(msg)
}

// unloadLocked closes the current backend.  c.provMu must be held
func (c *Controller) unloadLocked() error {

	// batches from the old backend are not served after a switch
	c.batches.Take()

	if c.backend == nil {
		return nil
	}

	err := c.backend.Close()

	if err != nil {
		c.log.Warn("error closing backend",
			zap.Stringer("provider", c.loaded),
			zap.Error(err),
		)
	}

	c.backend = nil
	c.loaded = Invalid

	return err
}

// Tick applies a finished switch and re-queues a switch that could not be
// queued earlier.  It must be called from the video tick
func (c *Controller) Tick() {

	msg, ok := c.done.Take()

	if !ok {
		if c.retry.Load() {
			c.retrySwitch()
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.switching = false
	c.active = msg.Provider
	c.lastErr = msg.Err

	if msg.Err != nil {
		c.state = StateFailed
		c.log.Warn("provider switch failed",
			zap.Stringer("requested", msg.Requested),
			zap.Duration("took", msg.Took),
			zap.Error(msg.Err),
		)
	} else {
		c.state = StateReady
		c.log.Info("provider switched",
			zap.Stringer("requested", msg.Requested),
			zap.Stringer("provider", msg.Provider),
			zap.String("name", c.caps.Name(msg.Provider)),
			zap.Duration("took", msg.Took),
		)
	}

	if c.closed || c.desired == msg.Requested {
		return
	}

	// selection changed while switching, last request wins
	if err := c.switchLocked(); err != nil {
		c.log.Warn("error re-issuing provider switch",
			zap.Stringer("desired", c.desired),
			zap.Error(err),
		)
	}
}

// retrySwitch queues the desired provider again after a failed attempt
func (c *Controller) retrySwitch() {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.switching {
		return
	}

	if err := c.switchLocked(); err != nil {
		c.log.Debug("provider switch still not queued",
			zap.Stringer("desired", c.desired),
			zap.Error(err),
		)
	}
}

// Ready reports if a backend is loaded and producing detections
func (c *Controller) Ready() bool {
	return c.ready.Load()
}

// Poll returns the most recent detection batch, or an empty batch when not
// ready.  It never blocks
func (c *Controller) Poll() tracker.Batch {

	if !c.ready.Load() {
		return tracker.Batch{}
	}

	b, _ := c.batches.Peek()

	return b
}

// SubmitFrame queues img for detection.  The frame is dropped and false
// returned when not ready or a detection is still in flight
func (c *Controller) SubmitFrame(img image.Image) bool {

	if img == nil || !c.ready.Load() {
		return false
	}

	if !c.busy.CompareAndSwap(false, true) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.busy.Store(false)
		return false
	}

	c.inflight.Add(1)

	err := c.pool.Submit(func() {
		defer c.inflight.Done()
		defer c.busy.Store(false)
		c.detect(img)
	})

	if err != nil {
		c.inflight.Done()
		c.busy.Store(false)
		return false
	}

	return true
}

// detect runs on a pool worker
func (c *Controller) detect(img image.Image) {

	c.provMu.Lock()
	defer c.provMu.Unlock()

	if c.backend == nil || !c.ready.Load() {
		return
	}

	start := time.Now()
	dets, err := c.backend.Detect(img)

	if err != nil {
		c.log.Warn("detection failed",
			zap.Stringer("provider", c.loaded),
			zap.Error(err),
		)
		return
	}

	batch := tracker.Batch{
		Seq:        c.seq.Add(1),
		Provider:   c.loaded.String(),
		Detections: dets,
	}

	c.batches.Post(batch)

	c.log.Debug("detections published",
		zap.Uint64("seq", batch.Seq),
		zap.Int("count", len(dets)),
		zap.Duration("took", time.Since(start)),
	)
}

// State returns the lifecycle state as of the last Tick
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the provider applied by the last Tick
func (c *Controller) Active() Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Desired returns the most recently selected provider
func (c *Controller) Desired() Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

// Err returns the error of the last failed switch
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Available reports if the active provider is loaded and still available
// on this host
func (c *Controller) Available() bool {
	return c.ready.Load() && c.caps.IsAvailable(c.Active())
}

// IsAvailable reports if provider p can be used on this host
func (c *Controller) IsAvailable(p Provider) bool {
	return c.caps.IsAvailable(p)
}

// IdealProvider returns the provider Automatic currently resolves to
func (c *Controller) IdealProvider() Provider {
	return c.caps.IdealProvider()
}

// Close waits for queued switch and inference tasks then unloads the
// backend.  Running tasks are not interrupted
func (c *Controller) Close() error {

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	c.mu.Unlock()

	c.inflight.Wait()

	c.provMu.Lock()
	c.ready.Store(false)
	err := c.unloadLocked()
	c.provMu.Unlock()

	if c.ownPool {
		c.pool.Close()
	}

	return err
}
