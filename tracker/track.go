package tracker

import (
	"fmt"

	"github.com/google/uuid"
)

// TrackState represents the lifecycle state of a track
type TrackState int

const (
	// Unseen is the state of a slot holding no track
	Unseen TrackState = 0
	// Active tracks were matched by the most recent batch
	Active TrackState = 1
	// Stale tracks went unmatched and are aging towards eviction
	Stale TrackState = 2
	// Evicted tracks exceeded the maximum age and have been destroyed
	Evicted TrackState = 3
)

// String returns a readable name of the state
func (s TrackState) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case Active:
		return "active"
	case Stale:
		return "stale"
	case Evicted:
		return "evicted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SlotID is the stable index of a track slot in the arena, valid for the
// lifetime of the track held in it
type SlotID int

// Track is the raw detection state of a single tracked target
type Track struct {
	// ID is a unique label for logging and display
	ID uuid.UUID
	// Age is the time in seconds since the track was last matched
	Age float32
	// Position is the center of the target
	Position Vec2
	// Size is the width and height of the target
	Size Vec2
	// Velocity is the position change per second between the last two
	// matches
	Velocity Vec2
	// Score is the confidence of the last matched detection
	Score float32
	// Hits is the number of detections matched to the track
	Hits int
	// State is the lifecycle state
	State TrackState
}

// Box returns the raw detection box of the track
func (t *Track) Box() Box {
	return Box{Center: t.Position, Size: t.Size}
}

// match updates the track in place from a matched detection
func (t *Track) match(det Detection) {

	if t.Age > 0 {
		t.Velocity = det.Position.Sub(t.Position).Scale(1 / t.Age)
	}

	t.Position = det.Position
	t.Size = det.Size
	t.Score = det.Score
	t.Age = 0
	t.Hits++
	t.State = Active
}

// Prediction is the derived, filtered framing geometry of one Track
type Prediction struct {
	// MotionPosition is the track position extrapolated by its velocity
	MotionPosition Vec2
	// FilterX smooths the x axis of the position
	FilterX Kalman1D
	// FilterY smooths the y axis of the position
	FilterY Kalman1D
	// OffsetPosition is the filtered position with the framing offset applied
	OffsetPosition Vec2
	// PaddedSize is the track size with the framing padding applied
	PaddedSize Vec2
	// AspectedSize is PaddedSize grown to the target aspect ratio
	AspectedSize Vec2
	// Valid is false when the geometry was degenerate on the last update and
	// the record is excluded from aggregation
	Valid bool
}

// Box returns the framing box of the prediction
func (p *Prediction) Box() Box {
	return Box{Center: p.OffsetPosition, Size: p.AspectedSize}
}

// update derives the prediction from the track for the current tick
func (p *Prediction) update(t *Track, cfg *Config, aspect float32) {

	// motion prediction
	p.MotionPosition = t.Position.Add(t.Velocity.Scale(cfg.MotionPrediction))

	// position smoothing
	filtered := Vec2{
		X: p.FilterX.Filter(p.MotionPosition.X),
		Y: p.FilterY.Filter(p.MotionPosition.Y),
	}

	// offset
	p.OffsetPosition = Vec2{
		X: filtered.X + measure(cfg.Offset.X, cfg.OffsetPercent[0], t.Size.X),
		Y: filtered.Y + measure(cfg.Offset.Y, cfg.OffsetPercent[1], t.Size.Y),
	}

	// padding on both sides
	p.PaddedSize = Vec2{
		X: t.Size.X + 2*measure(cfg.Padding.X, cfg.PaddingPercent[0], t.Size.X),
		Y: t.Size.Y + 2*measure(cfg.Padding.Y, cfg.PaddingPercent[1], t.Size.Y),
	}

	p.AspectedSize = fitAspect(p.PaddedSize, aspect)

	p.Valid = t.Size.Positive() && p.OffsetPosition.Finite() &&
		p.PaddedSize.Positive() && p.AspectedSize.Positive()
}

// measure resolves an absolute or percentage value against a reference
// length
func measure(value float32, percent bool, reference float32) float32 {
	if percent {
		return reference * value
	}
	return value
}

// slot holds the raw and derived state of one track inline
type slot struct {
	used  bool
	track Track
	pred  Prediction
}

// arena is a pool of track slots indexed by SlotID.  Freed slots are
// reused for new tracks
type arena struct {
	slots []slot
	free  []SlotID
	live  int
}

// alloc returns a cleared slot for a new track
func (a *arena) alloc() SlotID {

	var id SlotID

	if n := len(a.free); n > 0 {
		id = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{})
		id = SlotID(len(a.slots) - 1)
	}

	a.slots[id] = slot{used: true}
	a.live++

	return id
}

// release destroys the track and prediction held in the slot together
func (a *arena) release(id SlotID) {

	if !a.valid(id) {
		return
	}

	a.slots[id] = slot{}
	a.free = append(a.free, id)
	a.live--
}

// valid reports if id refers to a slot holding a live track
func (a *arena) valid(id SlotID) bool {
	return id >= 0 && int(id) < len(a.slots) && a.slots[id].used
}

// get returns the slot for id, or nil if no live track is held there
func (a *arena) get(id SlotID) *slot {
	if !a.valid(id) {
		return nil
	}
	return &a.slots[id]
}

// reset destroys all tracks
func (a *arena) reset() {
	a.slots = a.slots[:0]
	a.free = a.free[:0]
	a.live = 0
}
