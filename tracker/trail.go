package tracker

import (
	"sync"

	"github.com/google/uuid"
)

// Point represents the x,y coordinates of the center of a track
type Point struct {
	X, Y int
}

// history is the recorded points of one track
type history struct {
	points []Point
}

// Trail is the struct to keep a history of track center points used for
// drawing a trail on the debug overlay
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points keyed by track ID
	history map[uuid.UUID]*history
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size is the number of
// most recent points to keep and specifies the maximum length of the trail
// to maintain
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[uuid.UUID]*history),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[uuid.UUID]*history)
}

// Add a center point to the history of track id
func (t *Trail) Add(id uuid.UUID, center Vec2) {
	t.Lock()
	defer t.Unlock()

	h, exists := t.history[id]

	if !exists {
		h = &history{}
		t.history[id] = h
	}

	h.points = append(h.points, Point{
		X: int(center.X),
		Y: int(center.Y),
	})

	// check if history is exceeded and drop oldest point
	if len(h.points) > t.size {
		h.points = h.points[1:]
	}
}

// Remove drops the history of an evicted track
func (t *Trail) Remove(id uuid.UUID) {
	t.Lock()
	defer t.Unlock()

	delete(t.history, id)
}

// GetPoints gets a copy of the point history for a specific track id
func (t *Trail) GetPoints(id uuid.UUID) []Point {
	t.Lock()
	defer t.Unlock()

	if h, exists := t.history[id]; exists {
		points := make([]Point, len(h.points))
		copy(points, h.points)
		return points
	}

	// no history yet
	return nil
}
