package autoframe

import (
	"errors"
	"image"
	"math"

	"github.com/swdee/go-autoframe/tracker"
	"golang.org/x/image/draw"
)

// ErrEmptyCrop is returned when the window does not overlap the source
var ErrEmptyCrop = errors.New("crop window is empty")

// Scaler is the interpolator used by Crop
var Scaler draw.Scaler = draw.ApproxBiLinear

// CropRect returns the window in src pixel coordinates, clipped to bounds
func CropRect(bounds image.Rectangle, w tracker.Window) image.Rectangle {

	if !w.Valid() {
		return image.Rectangle{}
	}

	b := w.Box()

	r := image.Rect(
		bounds.Min.X+int(math.Floor(float64(b.Left()))),
		bounds.Min.Y+int(math.Floor(float64(b.Top()))),
		bounds.Min.X+int(math.Ceil(float64(b.Right()))),
		bounds.Min.Y+int(math.Ceil(float64(b.Bottom()))),
	)

	return r.Intersect(bounds)
}

// Crop scales the window region of src to fill dst
func Crop(dst *image.RGBA, src image.Image, w tracker.Window) error {

	r := CropRect(src.Bounds(), w)

	if r.Empty() || dst.Bounds().Empty() {
		return ErrEmptyCrop
	}

	Scaler.Scale(dst, dst.Bounds(), src, r, draw.Src, nil)

	return nil
}
