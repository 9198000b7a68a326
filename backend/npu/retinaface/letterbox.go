package retinaface

// Letterbox is the geometry of scaling a source image into the model input
// whilst maintaining its aspect, padding the remaining border
type Letterbox struct {
	// SrcWidth and SrcHeight are the source image dimensions
	SrcWidth, SrcHeight int
	// DstWidth and DstHeight are the model input dimensions
	DstWidth, DstHeight int
	// ResizeWidth and ResizeHeight are the scaled source dimensions
	ResizeWidth, ResizeHeight int
	// XPad and YPad are the left and top border sizes
	XPad, YPad int
	// Scale is the factor from source to model coordinates
	Scale float32
}

// NewLetterbox precalculates the scaling of a srcWidth x srcHeight image
// into a dstWidth x dstHeight model input
func NewLetterbox(srcWidth, srcHeight, dstWidth, dstHeight int) Letterbox {

	l := Letterbox{
		SrcWidth:     srcWidth,
		SrcHeight:    srcHeight,
		DstWidth:     dstWidth,
		DstHeight:    dstHeight,
		ResizeWidth:  dstWidth,
		ResizeHeight: dstHeight,
	}

	if srcWidth <= 0 || srcHeight <= 0 {
		l.Scale = 1
		return l
	}

	scaleW := float32(dstWidth) / float32(srcWidth)
	scaleH := float32(dstHeight) / float32(srcHeight)
	l.Scale = scaleH

	if scaleW < scaleH {
		l.Scale = scaleW
		l.ResizeHeight = int(float32(srcHeight) * l.Scale)
	} else {
		l.ResizeWidth = int(float32(srcWidth) * l.Scale)
	}

	l.XPad = (dstWidth - l.ResizeWidth) / 2
	l.YPad = (dstHeight - l.ResizeHeight) / 2

	return l
}

// Border returns the top, bottom, left and right border sizes
func (l Letterbox) Border() (top, bottom, left, right int) {
	return l.YPad, l.DstHeight - l.ResizeHeight - l.YPad,
		l.XPad, l.DstWidth - l.ResizeWidth - l.XPad
}

// ToSource maps a point in model input pixels back to the source image,
// clamped to the source bounds
func (l Letterbox) ToSource(x, y float32) (float32, float32) {

	sx := (x - float32(l.XPad)) / l.Scale
	sy := (y - float32(l.YPad)) / l.Scale

	return clamp(sx, 0, float32(l.SrcWidth)), clamp(sy, 0, float32(l.SrcHeight))
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
