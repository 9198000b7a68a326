package tracker

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// noSlot marks that no SOLO target is selected
const noSlot SlotID = -1

// Window is the framing window published every tick
type Window struct {
	// Position is the center of the window in source frame pixels
	Position Vec2
	// Size is the width and height of the window
	Size Vec2
}

// Box returns the window as a Box
func (w Window) Box() Box {
	return Box{Center: w.Position, Size: w.Size}
}

// Valid reports if the window has a finite position and a positive size
func (w Window) Valid() bool {
	return w.Box().Valid()
}

// TargetView is a read only copy of one slot used for display
type TargetView struct {
	// Slot is the arena index of the track
	Slot SlotID
	// Track is the raw state
	Track Track
	// Prediction is the derived state
	Prediction Prediction
	// Selected is true for the SOLO target
	Selected bool
}

// Snapshot is a copy of the Engine state after a tick
type Snapshot struct {
	Mode        Mode
	Targets     []TargetView
	Envelope    Box
	HasEnvelope bool
	Window      Window
	InputSize   Vec2
}

// Engine owns the tracks and their predictions and derives one framing
// Window from them every tick
type Engine struct {
	// cfg is the normalized configuration
	cfg Config
	// aspect is the target aspect ratio derived from cfg
	aspect float32
	// src supplies detection batches
	src Source
	// log receives track lifecycle events
	log *zap.Logger
	// trail records track center history when set
	trail *Trail

	// tracks is the slot arena holding each track and its prediction
	tracks arena
	// match is the detection to track association policy
	match matcher
	// counter is the time in seconds until the next detection poll
	counter float32
	// lastSeq is the sequence number of the last batch ingested
	lastSeq uint64
	// target is the selected SOLO target
	target SlotID

	// frame level filters, persist across ticks
	framePosX  Kalman1D
	framePosY  Kalman1D
	frameSizeX Kalman1D
	frameSizeY Kalman1D

	// envelope is the pre-smoothing aggregate of the last tick
	envelope    Box
	hasEnvelope bool
	// window is the published output
	window Window

	// scratch buffers for the GROUP envelope
	lefts, tops, rights, bottoms []float64
}

// EngineOption configures optional Engine collaborators
type EngineOption func(*Engine)

// WithLogger sets the logger used for track lifecycle events
func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithTrail records the center point history of tracks into trail
func WithTrail(trail *Trail) EngineOption {
	return func(e *Engine) {
		e.trail = trail
	}
}

// NewEngine returns an Engine with no tracks polling src for detections.
// src may be nil in which case no detections are ever ingested
func NewEngine(cfg Config, src Source, opts ...EngineOption) *Engine {

	e := &Engine{
		src:    src,
		log:    zap.NewNop(),
		target: noSlot,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.applyConfig(cfg.Normalize())
	e.resetWindow()

	return e
}

// Config returns the normalized configuration in use
func (e *Engine) Config() Config {
	return e.cfg
}

// SetConfig replaces the configuration.  Existing tracks keep the filter
// coefficients they were created with, frame level filters are rebuilt at
// their current estimates.  Changing the input size or aspect ratio resets
// the window
func (e *Engine) SetConfig(cfg Config) {

	cfg = cfg.Normalize()
	old := e.cfg

	e.applyConfig(cfg)

	if old.InputSize != cfg.InputSize || old.TargetAspect() != cfg.TargetAspect() {
		e.resetWindow()
		return
	}

	q, r := e.frameNoise()
	e.framePosX = NewKalman1D(q, r, e.framePosX.Variance(), e.framePosX.Get())
	e.framePosY = NewKalman1D(q, r, e.framePosY.Variance(), e.framePosY.Get())
	e.frameSizeX = NewKalman1D(q, r, e.frameSizeX.Variance(), e.frameSizeX.Get())
	e.frameSizeY = NewKalman1D(q, r, e.frameSizeY.Variance(), e.frameSizeY.Get())
}

func (e *Engine) applyConfig(cfg Config) {
	e.cfg = cfg
	e.aspect = cfg.TargetAspect()

	if e.counter > cfg.Period() {
		e.counter = cfg.Period()
	}
}

// Reset destroys all tracks and recenters the window
func (e *Engine) Reset() {
	e.tracks.reset()
	e.target = noSlot
	e.lastSeq = 0
	e.counter = 0
	e.hasEnvelope = false

	if e.trail != nil {
		e.trail.Reset()
	}

	e.resetWindow()
}

// resetWindow seeds the window and frame filters with the largest window
// of the target aspect ratio centered in the input
func (e *Engine) resetWindow() {

	in := e.cfg.InputSize
	e.window = Window{
		Position: in.Scale(0.5),
		Size:     fitInside(in, e.aspect),
	}

	q, r := e.frameNoise()
	e.framePosX = NewKalman1D(q, r, DefaultEstimateVariance, e.window.Position.X)
	e.framePosY = NewKalman1D(q, r, DefaultEstimateVariance, e.window.Position.Y)
	e.frameSizeX = NewKalman1D(q, r, DefaultEstimateVariance, e.window.Size.X)
	e.frameSizeY = NewKalman1D(q, r, DefaultEstimateVariance, e.window.Size.Y)
}

func (e *Engine) frameNoise() (float32, float32) {
	return NoiseFromSmoothing(e.cfg.FrameStability, e.cfg.FrameProcessNoise,
		e.cfg.FrameMeasurementNoise)
}

func (e *Engine) motionNoise() (float32, float32) {
	return NoiseFromSmoothing(e.cfg.MotionSmoothing, e.cfg.MotionProcessNoise,
		e.cfg.MotionMeasurementNoise)
}

// Tick advances the engine by seconds and returns the published window.
// New detections are only pulled when the detection period has elapsed,
// predictions and the window are derived on every call
func (e *Engine) Tick(seconds float32) Window {

	if !finite(seconds) || seconds < 0 {
		seconds = 0
	}

	e.age(seconds)

	e.counter -= seconds

	if e.counter <= 0 {
		e.counter += e.cfg.Period()

		if e.counter <= 0 {
			// fell behind by more than a period, don't try to catch up
			e.counter = e.cfg.Period()
		}

		e.pull()
	}

	// evicting after the pull lets a late batch still match its track
	e.expire()

	e.predict()
	e.aggregate()

	return e.window
}

// Window returns the window published by the last tick
func (e *Engine) Window() Window {
	return e.window
}

// Envelope returns the aggregate box of the last tick before aspect
// correction and smoothing.  ok is false when no target contributed
func (e *Engine) Envelope() (Box, bool) {
	return e.envelope, e.hasEnvelope
}

// Target returns the selected SOLO target
func (e *Engine) Target() (SlotID, bool) {
	return e.target, e.tracks.valid(e.target)
}

// Len returns the number of live tracks
func (e *Engine) Len() int {
	return e.tracks.live
}

// Track returns a copy of the track held in slot id
func (e *Engine) Track(id SlotID) (Track, bool) {
	s := e.tracks.get(id)

	if s == nil {
		return Track{}, false
	}

	return s.track, true
}

// Prediction returns a copy of the prediction held in slot id
func (e *Engine) Prediction(id SlotID) (Prediction, bool) {
	s := e.tracks.get(id)

	if s == nil {
		return Prediction{}, false
	}

	return s.pred, true
}

// Snapshot returns a copy of the current tracks and window
func (e *Engine) Snapshot() Snapshot {

	snap := Snapshot{
		Mode:        e.cfg.Mode,
		Targets:     make([]TargetView, 0, e.tracks.live),
		Envelope:    e.envelope,
		HasEnvelope: e.hasEnvelope,
		Window:      e.window,
		InputSize:   e.cfg.InputSize,
	}

	for i := range e.tracks.slots {
		s := &e.tracks.slots[i]

		if !s.used {
			continue
		}

		snap.Targets = append(snap.Targets, TargetView{
			Slot:       SlotID(i),
			Track:      s.track,
			Prediction: s.pred,
			Selected:   e.cfg.Mode == ModeSolo && SlotID(i) == e.target,
		})
	}

	return snap
}

// age grows the age of every track
func (e *Engine) age(seconds float32) {

	for i := range e.tracks.slots {
		s := &e.tracks.slots[i]

		if s.used {
			s.track.Age += seconds
		}
	}
}

// expire evicts tracks left unmatched for longer than MaxAge
func (e *Engine) expire() {

	for i := range e.tracks.slots {
		s := &e.tracks.slots[i]

		if s.used && s.track.Age > e.cfg.MaxAge {
			e.evict(SlotID(i))
		}
	}
}

// evict destroys a track together with its prediction
func (e *Engine) evict(id SlotID) {

	s := e.tracks.get(id)

	if s == nil {
		return
	}

	e.log.Debug("track evicted",
		zap.Int("slot", int(id)),
		zap.Stringer("track", s.track.ID),
		zap.Float32("age", s.track.Age),
		zap.Int("hits", s.track.Hits),
	)

	if e.trail != nil {
		e.trail.Remove(s.track.ID)
	}

	if e.target == id {
		e.target = noSlot
	}

	e.tracks.release(id)
}

// pull fetches the latest batch from the source and ingests it when it has
// not been seen before
func (e *Engine) pull() {

	if e.src == nil || !e.src.Ready() {
		return
	}

	batch := e.src.Poll()

	if batch.Seq == 0 || batch.Seq == e.lastSeq {
		// nothing new, keep the previous track state
		return
	}

	e.lastSeq = batch.Seq
	e.ingest(batch.Detections)
}

// ingest reconciles detections against the existing tracks
func (e *Engine) ingest(in []Detection) {

	dets := validDetections(in)

	matches, unmatched := e.match.associate(&e.tracks, dets, e.cfg.MatchDistance)

	matched := make(map[SlotID]bool, len(matches))

	for _, m := range matches {
		s := e.tracks.get(m.slot)
		s.track.match(dets[m.det])
		matched[m.slot] = true

		if e.trail != nil {
			e.trail.Add(s.track.ID, s.track.Position)
		}
	}

	for i := range e.tracks.slots {
		s := &e.tracks.slots[i]

		if s.used && !matched[SlotID(i)] {
			s.track.State = Stale
		}
	}

	for _, j := range unmatched {
		e.spawn(dets[j])
	}
}

// spawn creates a new track and its prediction for an unmatched detection
func (e *Engine) spawn(det Detection) SlotID {

	id := e.tracks.alloc()
	s := e.tracks.get(id)

	s.track = Track{
		ID:       uuid.New(),
		Position: det.Position,
		Size:     det.Size,
		Score:    det.Score,
		Hits:     1,
		State:    Active,
	}

	q, r := e.motionNoise()
	s.pred = Prediction{
		FilterX: NewKalman1D(q, r, DefaultEstimateVariance, det.Position.X),
		FilterY: NewKalman1D(q, r, DefaultEstimateVariance, det.Position.Y),
	}

	e.log.Debug("track spawned",
		zap.Int("slot", int(id)),
		zap.Stringer("track", s.track.ID),
		zap.Float32("x", det.Position.X),
		zap.Float32("y", det.Position.Y),
		zap.Float32("score", det.Score),
	)

	if e.trail != nil {
		e.trail.Add(s.track.ID, s.track.Position)
	}

	return id
}

// predict updates the prediction of every live track
func (e *Engine) predict() {
	for i := range e.tracks.slots {
		s := &e.tracks.slots[i]

		if s.used {
			s.pred.update(&s.track, &e.cfg, e.aspect)
		}
	}
}

// aggregate combines the predictions into the window.  When nothing
// contributes the previous window is kept
func (e *Engine) aggregate() {

	var (
		agg Box
		ok  bool
	)

	switch e.cfg.Mode {
	case ModeSolo:
		agg, ok = e.soloBox()
	default:
		agg, ok = e.groupBox()
	}

	e.envelope, e.hasEnvelope = agg, ok

	if !ok {
		return
	}

	size := fitAspect(agg.Size, e.aspect)

	w := Window{
		Position: Vec2{
			X: e.framePosX.Filter(agg.Center.X),
			Y: e.framePosY.Filter(agg.Center.Y),
		},
		Size: Vec2{
			X: e.frameSizeX.Filter(size.X),
			Y: e.frameSizeY.Filter(size.Y),
		},
	}

	if !w.Valid() {
		return
	}

	e.window = clampWindow(w, e.cfg.InputSize)
}

// soloBox returns the framing box of the selected target
func (e *Engine) soloBox() (Box, bool) {

	id, ok := e.selectTarget()

	if !ok {
		return Box{}, false
	}

	s := e.tracks.get(id)

	if !s.pred.Valid {
		return Box{}, false
	}

	return s.pred.Box(), true
}

// selectTarget keeps the current SOLO target while it is alive, otherwise
// picks the largest active track falling back to the largest live track.
// Ties go to the lower slot id
func (e *Engine) selectTarget() (SlotID, bool) {

	if e.tracks.valid(e.target) {
		return e.target, true
	}

	best := noSlot
	bestActive := false
	bestArea := float32(0)

	for i := range e.tracks.slots {
		s := &e.tracks.slots[i]

		if !s.used || !s.pred.Valid {
			continue
		}

		active := s.track.State == Active
		area := s.track.Box().Area()

		switch {
		case best == noSlot,
			active && !bestActive,
			active == bestActive && area > bestArea:
			best, bestActive, bestArea = SlotID(i), active, area
		}
	}

	if best == noSlot {
		return noSlot, false
	}

	if e.target != best {
		e.log.Debug("solo target selected", zap.Int("slot", int(best)))
	}

	e.target = best

	return best, true
}

// groupBox returns the envelope of all valid framing boxes
func (e *Engine) groupBox() (Box, bool) {

	e.lefts, e.tops = e.lefts[:0], e.tops[:0]
	e.rights, e.bottoms = e.rights[:0], e.bottoms[:0]

	var first Box

	for i := range e.tracks.slots {
		s := &e.tracks.slots[i]

		if !s.used || !s.pred.Valid {
			continue
		}

		b := s.pred.Box()

		if len(e.lefts) == 0 {
			first = b
		}

		e.lefts = append(e.lefts, float64(b.Left()))
		e.tops = append(e.tops, float64(b.Top()))
		e.rights = append(e.rights, float64(b.Right()))
		e.bottoms = append(e.bottoms, float64(b.Bottom()))
	}

	switch len(e.lefts) {
	case 0:
		return Box{}, false
	case 1:
		return first, true
	}

	return NewBoxFromCorners(
		float32(floats.Min(e.lefts)),
		float32(floats.Min(e.tops)),
		float32(floats.Max(e.rights)),
		float32(floats.Max(e.bottoms)),
	), true
}

// clampWindow scales the window down uniformly until it fits within bounds
// and moves it so no part lies outside of bounds
func clampWindow(w Window, bounds Vec2) Window {

	size := w.Size

	if size.X > bounds.X {
		size = size.Scale(bounds.X / size.X)
	}

	if size.Y > bounds.Y {
		size = size.Scale(bounds.Y / size.Y)
	}

	// guard against rounding from the scale above
	size.X = min32(size.X, bounds.X)
	size.Y = min32(size.Y, bounds.Y)

	half := size.Scale(0.5)

	return Window{
		Position: Vec2{
			X: clamp32(w.Position.X, half.X, bounds.X-half.X),
			Y: clamp32(w.Position.Y, half.Y, bounds.Y-half.Y),
		},
		Size: size,
	}
}
