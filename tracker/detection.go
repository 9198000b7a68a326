package tracker

// Detection represents a single raw box produced by a detection backend
type Detection struct {
	// Position is the center of the detected box in source frame pixels
	Position Vec2
	// Size is the width and height of the detected box
	Size Vec2
	// Score is the backend confidence of the detection, used for logging and
	// the debug overlay only
	Score float32
}

// NewDetection is a constructor function creating a Detection from the
// top-left and bottom-right corners of a box
func NewDetection(left, top, right, bottom, score float32) Detection {
	b := NewBoxFromCorners(left, top, right, bottom)

	return Detection{
		Position: b.Center,
		Size:     b.Size,
		Score:    score,
	}
}

// Box returns the detection as a Box
func (d Detection) Box() Box {
	return Box{Center: d.Position, Size: d.Size}
}

// Batch is a set of detections produced by one backend invocation
type Batch struct {
	// Seq is a sequence number incremented for every batch produced.  Zero
	// means no batch has been produced yet
	Seq uint64
	// Provider is the name of the backend that produced the batch
	Provider string
	// Detections are the boxes detected, possibly empty
	Detections []Detection
}

// Source is the detection source polled by the Engine.  Both methods must
// be non-blocking
type Source interface {
	// Ready reports if the source has an active backend producing batches
	Ready() bool
	// Poll returns the most recent batch, or an empty batch if none
	Poll() Batch
}
