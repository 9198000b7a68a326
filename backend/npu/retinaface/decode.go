package retinaface

import (
	"fmt"
	"math"
	"sort"

	"github.com/swdee/go-autoframe/tracker"
)

// Params are the post processing thresholds
type Params struct {
	// ConfThreshold is the minimum face score for a prior to be considered
	ConfThreshold float32
	// NMSThreshold is the maximum Intersection Over Union allowed between two
	// kept boxes
	NMSThreshold float32
	// MaxDetections caps the number of faces returned
	MaxDetections int
}

// WiderFaceParams returns the thresholds suited to a model trained on the
// WIDERFACE dataset
func WiderFaceParams() Params {
	return Params{
		ConfThreshold: 0.5,
		NMSThreshold:  0.4,
		MaxDetections: 128,
	}
}

// box decoding variances of the trained model
var variances = [2]float32{0.1, 0.2}

// candidate is a decoded box above the confidence threshold in model input
// pixels
type candidate struct {
	x1, y1, x2, y2 float32
	score          float32
}

// Decoder turns raw RetinaFace output tensors into detections
type Decoder struct {
	Params Params
	// width and height of the model input
	width, height int
	priors        []Prior
}

// NewDecoder returns a Decoder for a model input of width x height
func NewDecoder(width, height int, p Params) *Decoder {
	return &Decoder{
		Params: p,
		width:  width,
		height: height,
		priors: Priors(width, height),
	}
}

// NumPriors returns the number of anchor boxes the model outputs
func (d *Decoder) NumPriors() int {
	return len(d.priors)
}

// Decode takes the location and score output tensors and returns the faces
// found, in source image coordinates given by the letterbox, highest
// score first
func (d *Decoder) Decode(loc, scores []float32, lb Letterbox) ([]tracker.Detection, error) {

	n := len(d.priors)

	if len(loc) < n*4 || len(scores) < n*2 {
		return nil, fmt.Errorf("output tensor sizes %d/%d do not match %d priors",
			len(loc), len(scores), n)
	}

	cands := d.filter(loc, scores)

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	kept := nms(cands, d.Params.NMSThreshold)

	dets := make([]tracker.Detection, 0, len(kept))

	for _, c := range kept {
		if d.Params.MaxDetections > 0 && len(dets) >= d.Params.MaxDetections {
			break
		}

		left, top := lb.ToSource(c.x1, c.y1)
		right, bottom := lb.ToSource(c.x2, c.y2)

		if right <= left || bottom <= top {
			// entirely within the letterbox border
			continue
		}

		dets = append(dets, tracker.NewDetection(left, top, right, bottom, c.score))
	}

	return dets, nil
}

// filter decodes the priors scoring above the confidence threshold
func (d *Decoder) filter(loc, scores []float32) []candidate {

	var cands []candidate

	w, h := float32(d.width), float32(d.height)

	for i, p := range d.priors {

		score := scores[i*2+1]

		if score <= d.Params.ConfThreshold {
			continue
		}

		cx := loc[i*4+0]*variances[0]*p.W + p.CX
		cy := loc[i*4+1]*variances[0]*p.H + p.CY
		bw := float32(math.Exp(float64(loc[i*4+2]*variances[1]))) * p.W
		bh := float32(math.Exp(float64(loc[i*4+3]*variances[1]))) * p.H

		cands = append(cands, candidate{
			x1:    (cx - bw*0.5) * w,
			y1:    (cy - bh*0.5) * h,
			x2:    (cx + bw*0.5) * w,
			y2:    (cy + bh*0.5) * h,
			score: score,
		})
	}

	return cands
}

// nms suppresses boxes overlapping a higher scored box by more than
// threshold.  cands must be ordered by descending score
func nms(cands []candidate, threshold float32) []candidate {

	suppressed := make([]bool, len(cands))
	kept := make([]candidate, 0, len(cands))

	for i := range cands {
		if suppressed[i] {
			continue
		}

		kept = append(kept, cands[i])

		for j := i + 1; j < len(cands); j++ {
			if !suppressed[j] && overlap(cands[i], cands[j]) > threshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

// overlap returns the Intersection over Union of two boxes
func overlap(a, b candidate) float32 {

	w := max32(0, min32(a.x2, b.x2)-max32(a.x1, b.x1))
	h := max32(0, min32(a.y2, b.y2)-max32(a.y1, b.y1))
	inter := w * h

	union := (a.x2-a.x1)*(a.y2-a.y1) + (b.x2-b.x1)*(b.y2-b.y1) - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
