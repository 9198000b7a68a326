package tracker

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// pair is a detection assigned to a track slot
type pair struct {
	slot SlotID
	det  int
	dist float64
}

// matcher associates detections with existing tracks.  The policy is a
// greedy nearest-center assignment:
//
//  1. every track/detection pair whose center distance is within gate times
//     the larger side of the track is a candidate
//  2. candidates are ordered by distance, ties by lower slot id then lower
//     detection index
//  3. candidates are accepted in order while both sides are unassigned
//
// The result is deterministic for a given arena and detection order
type matcher struct {
	// candidates is scratch space reused between batches
	candidates []pair
	// a and b are scratch vectors for the distance calculation
	a, b [2]float64
}

// associate returns the accepted pairs and the indices of detections left
// unmatched.  A track is matched at most once and so is a detection
func (m *matcher) associate(ar *arena, dets []Detection, gate float32) ([]pair, []int) {

	m.candidates = m.candidates[:0]

	for i := range ar.slots {
		s := &ar.slots[i]

		if !s.used {
			continue
		}

		limit := float64(gate * max32(s.track.Size.X, s.track.Size.Y))

		for j, det := range dets {
			m.a = [2]float64{float64(s.track.Position.X), float64(s.track.Position.Y)}
			m.b = [2]float64{float64(det.Position.X), float64(det.Position.Y)}

			dist := floats.Distance(m.a[:], m.b[:], 2)

			if dist <= limit {
				m.candidates = append(m.candidates, pair{slot: SlotID(i), det: j, dist: dist})
			}
		}
	}

	sort.SliceStable(m.candidates, func(i, j int) bool {
		ci, cj := m.candidates[i], m.candidates[j]

		if ci.dist != cj.dist {
			return ci.dist < cj.dist
		}

		if ci.slot != cj.slot {
			return ci.slot < cj.slot
		}

		return ci.det < cj.det
	})

	usedSlot := make(map[SlotID]bool)
	usedDet := make([]bool, len(dets))
	var matches []pair

	for _, c := range m.candidates {
		if usedSlot[c.slot] || usedDet[c.det] {
			continue
		}

		usedSlot[c.slot] = true
		usedDet[c.det] = true
		matches = append(matches, c)
	}

	var unmatched []int

	for j := range dets {
		if !usedDet[j] {
			unmatched = append(unmatched, j)
		}
	}

	return matches, unmatched
}

// validDetections filters out detections with degenerate geometry
func validDetections(dets []Detection) []Detection {

	valid := make([]Detection, 0, len(dets))

	for _, det := range dets {
		if det.Position.Finite() && det.Size.Positive() {
			valid = append(valid, det)
		}
	}

	return valid
}
