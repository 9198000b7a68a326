package tracker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newArena returns an arena holding a track per detection
func newArena(dets ...Detection) *arena {

	ar := &arena{}

	for _, d := range dets {
		id := ar.alloc()
		s := ar.get(id)
		s.track = Track{Position: d.Position, Size: d.Size, Hits: 1, State: Active}
	}

	return ar
}

func TestMatcherNearest(t *testing.T) {

	ar := newArena(det(100, 100, 100, 100), det(400, 100, 100, 100))

	var m matcher
	matches, unmatched := m.associate(ar, []Detection{
		det(390, 105, 100, 100),
		det(110, 90, 100, 100),
	}, 1)

	want := []pair{
		{slot: 1, det: 0},
		{slot: 0, det: 1},
	}

	if diff := cmp.Diff(want, matches, cmp.AllowUnexported(pair{}),
		cmpopts.IgnoreFields(pair{}, "dist"),
		cmpopts.SortSlices(func(a, b pair) bool { return a.slot < b.slot })); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, unmatched)
}

func TestMatcherTieBreak(t *testing.T) {

	// a detection exactly between two tracks goes to the lower slot
	ar := newArena(det(100, 100, 100, 100), det(200, 100, 100, 100))

	var m matcher
	matches, unmatched := m.associate(ar, []Detection{det(150, 100, 100, 100)}, 1)

	require.Len(t, matches, 1)
	assert.Equal(t, SlotID(0), matches[0].slot)
	assert.Empty(t, unmatched)

	// two equidistant detections for one track go to the lower index
	ar = newArena(det(100, 100, 100, 100))
	matches, unmatched = m.associate(ar, []Detection{
		det(100, 130, 100, 100),
		det(100, 70, 100, 100),
	}, 1)

	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].det)
	assert.Equal(t, []int{1}, unmatched)
}

func TestMatcherGate(t *testing.T) {

	ar := newArena(det(100, 100, 40, 80))

	var m matcher

	// gate is the larger side of the track times the distance factor
	matches, unmatched := m.associate(ar, []Detection{det(180, 100, 40, 80)}, 1)
	assert.Len(t, matches, 1)
	assert.Empty(t, unmatched)

	matches, unmatched = m.associate(ar, []Detection{det(181, 100, 40, 80)}, 1)
	assert.Empty(t, matches)
	assert.Equal(t, []int{0}, unmatched)

	matches, _ = m.associate(ar, []Detection{det(181, 100, 40, 80)}, 2)
	assert.Len(t, matches, 1)
}

func TestMatcherGreedyOrder(t *testing.T) {

	// the closest pair is claimed first even if it leaves the other track
	// without a match
	ar := newArena(det(100, 100, 100, 100), det(160, 100, 100, 100))

	var m matcher
	matches, unmatched := m.associate(ar, []Detection{det(150, 100, 100, 100)}, 1)

	require.Len(t, matches, 1)
	assert.Equal(t, SlotID(1), matches[0].slot)
	assert.Empty(t, unmatched)
}

func TestEngineUnmatchedTracksStale(t *testing.T) {

	src := &stubSource{ready: true}
	src.push(det(100, 100, 50, 50), det(1000, 500, 50, 50))

	e := NewEngine(plainConfig(), src)
	e.Tick(0)

	src.push(det(105, 100, 50, 50))
	e.Tick(0.1)

	a, ok := e.Track(0)
	require.True(t, ok)
	assert.Equal(t, Active, a.State)
	assert.Equal(t, 2, a.Hits)

	b, ok := e.Track(1)
	require.True(t, ok)
	assert.Equal(t, Stale, b.State)
	assert.Equal(t, 1, b.Hits)
}

func TestValidDetections(t *testing.T) {

	nan := float32(0)
	nan = nan / nan

	got := validDetections([]Detection{
		det(10, 10, 5, 5),
		det(nan, 10, 5, 5),
		det(10, 10, 0, 5),
		det(10, 10, 5, -1),
		det(20, 20, 1, 1),
	})

	require.Len(t, got, 2)
	assert.Equal(t, float32(10), got[0].Position.X)
	assert.Equal(t, float32(20), got[1].Position.X)
}

func TestArenaReuse(t *testing.T) {

	var ar arena

	a := ar.alloc()
	b := ar.alloc()
	c := ar.alloc()

	assert.Equal(t, []SlotID{0, 1, 2}, []SlotID{a, b, c})
	assert.Equal(t, 3, ar.live)

	ar.get(b).track.Hits = 9
	ar.release(b)

	assert.False(t, ar.valid(b))
	assert.Nil(t, ar.get(b))
	assert.Equal(t, 2, ar.live)

	// released twice is a no-op
	ar.release(b)
	assert.Equal(t, 2, ar.live)

	d := ar.alloc()
	assert.Equal(t, b, d, "freed slot is reused")
	assert.Equal(t, 0, ar.get(d).track.Hits, "reused slot is cleared")

	assert.False(t, ar.valid(-1))
	assert.False(t, ar.valid(10))

	ar.reset()
	assert.Equal(t, 0, ar.live)
	assert.Equal(t, SlotID(0), ar.alloc())
}

func TestBoxUnion(t *testing.T) {

	a := NewBoxFromCorners(0, 0, 10, 10)
	b := NewBoxFromCorners(5, -5, 20, 8)

	u := a.Union(b)

	assert.Equal(t, float32(0), u.Left())
	assert.Equal(t, float32(-5), u.Top())
	assert.Equal(t, float32(20), u.Right())
	assert.Equal(t, float32(10), u.Bottom())
	assert.Equal(t, float32(300), u.Area())
}

func TestConfigNormalize(t *testing.T) {

	nan := float32(0)
	nan = nan / nan

	cfg := Config{
		Mode:             Mode(7),
		TrackFrequency:   1000,
		MaxAge:           -1,
		MatchDistance:    nan,
		MotionSmoothing:  3,
		MotionPrediction: 50,
		FrameStability:   -2,
		AspectRatio:      -1,
	}.Normalize()

	assert.Equal(t, ModeGroup, cfg.Mode)
	assert.Equal(t, float32(MaxTrackFrequency), cfg.TrackFrequency)
	assert.Equal(t, float32(1), cfg.MaxAge)
	assert.Equal(t, float32(1), cfg.MatchDistance)
	assert.Equal(t, float32(1), cfg.MotionSmoothing)
	assert.Equal(t, float32(MaxMotionPrediction), cfg.MotionPrediction)
	assert.Equal(t, float32(0), cfg.FrameStability)
	assert.Equal(t, float32(0), cfg.AspectRatio)
	assert.Equal(t, Vec2{X: 1920, Y: 1080}, cfg.InputSize)
	assert.Equal(t, Vec2{X: 1920, Y: 1080}, cfg.OutputSize)

	// max age never drops below one and a half detection periods
	cfg = Config{TrackFrequency: 1, MaxAge: 0.5}.Normalize()
	assert.Equal(t, float32(1.5), cfg.MaxAge)
	assert.Equal(t, float32(1), cfg.Period())
}

func TestConfigTargetAspect(t *testing.T) {

	cfg := DefaultConfig()
	cfg.OutputSize = Vec2{X: 1080, Y: 1920}
	assert.InDelta(t, 0.5625, cfg.TargetAspect(), 1e-6)

	cfg.AspectRatio = 2
	assert.Equal(t, float32(2), cfg.TargetAspect())

	assert.Equal(t, Vec2{X: 1080, Y: 1080}, fitInside(Vec2{X: 1920, Y: 1080}, 1))
	assert.Equal(t, Vec2{X: 1920, Y: 960}, fitInside(Vec2{X: 1920, Y: 1080}, 2))
}

func TestTrail(t *testing.T) {

	trail := NewTrail(3)
	id := [16]byte{1}

	for i := 0; i < 5; i++ {
		trail.Add(id, Vec2{X: float32(i), Y: float32(i * 2)})
	}

	points := trail.GetPoints(id)
	assert.Equal(t, []Point{{2, 4}, {3, 6}, {4, 8}}, points)

	// returned points are a copy
	points[0].X = 99
	assert.Equal(t, 2, trail.GetPoints(id)[0].X)

	trail.Remove(id)
	assert.Nil(t, trail.GetPoints(id))
}
