package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-autoframe/tracker"
	"gocv.io/x/gocv"
)

// Style defines the parameters used for rendering the debug overlay
type Style struct {
	Font          Font
	Trail         TrailStyle
	LineThickness int
	// ShowPredictions draws the aspect corrected framing box of each track
	ShowPredictions bool
	// OutlineColor and OutlineMargin control the GROUP outline
	OutlineColor  color.RGBA
	OutlineMargin float64
	// WindowColor is the color of the final frame window
	WindowColor color.RGBA
	// EnvelopeColor is the color of the unsmoothed aggregate box
	EnvelopeColor color.RGBA
}

// DefaultStyle returns default overlay style settings
func DefaultStyle() Style {
	return Style{
		Font:            DefaultFont(),
		Trail:           DefaultTrailStyle(),
		LineThickness:   2,
		ShowPredictions: true,
		OutlineColor:    Pink,
		OutlineMargin:   6,
		WindowColor:     Green,
		EnvelopeColor:   White,
	}
}

// Overlay draws the tracker state of snap onto img.  Layers from bottom to
// top are the GROUP outline, predictions, envelope, trails, raw track boxes
// and finally the frame window
func Overlay(img *gocv.Mat, snap tracker.Snapshot, trail *tracker.Trail,
	style Style) {

	if snap.Mode == tracker.ModeGroup {
		GroupOutline(img, snap.Targets, style.OutlineMargin, style.OutlineColor,
			style.LineThickness)
	}

	if style.ShowPredictions {
		PredictionBoxes(img, snap.Targets, 1)
	}

	if snap.HasEnvelope {
		gocv.Rectangle(img, toRect(snap.Envelope), style.EnvelopeColor, 1)
	}

	Trail(img, snap.Targets, trail, style.Trail)
	TrackBoxes(img, snap.Targets, style.Font, style.LineThickness)

	if !snap.Window.Valid() {
		return
	}

	rect := toRect(snap.Window.Box())
	gocv.Rectangle(img, rect, style.WindowColor, style.LineThickness)

	text := fmt.Sprintf("%s %d tracks", snap.Mode, len(snap.Targets))
	gocv.PutTextWithParams(img, text,
		image.Pt(rect.Min.X+style.Font.LeftPad, rect.Max.Y-style.Font.BottomPad),
		style.Font.Face, style.Font.Scale, style.WindowColor, style.Font.Thickness,
		style.Font.LineType, false)
}
