package render

import (
	"fmt"
	"image"

	"github.com/swdee/go-autoframe/tracker"
	"gocv.io/x/gocv"
)

// toRect converts a tracker box to integer image coordinates
func toRect(b tracker.Box) image.Rectangle {
	return image.Rect(int(b.Left()), int(b.Top()), int(b.Right()), int(b.Bottom()))
}

// TrackBoxes renders the raw detection box of every track labelled with its
// short ID and last detection score.  The selected SOLO target is marked
// with an asterisk
func TrackBoxes(img *gocv.Mat, targets []tracker.TargetView, font Font,
	lineThickness int) {

	labels := make([]boxLabel, 0, len(targets))

	for _, t := range targets {

		clr := TrackColor(t.Track.ID)
		rect := toRect(t.Track.Box())

		gocv.Rectangle(img, rect, clr, lineThickness)

		text := fmt.Sprintf("%s %.2f", t.Track.ID.String()[:8], t.Track.Score)

		if t.Selected {
			text = "*" + text
		}

		if t.Track.State == tracker.Stale {
			text += " stale"
		}

		labels = append(labels, placeLabel(rect, text, clr, font, lineThickness))
	}

	drawLabels(img, labels, font)
}

// PredictionBoxes renders the padded and aspect corrected framing box of
// every track with a valid prediction
func PredictionBoxes(img *gocv.Mat, targets []tracker.TargetView,
	lineThickness int) {

	for _, t := range targets {

		if !t.Prediction.Valid {
			continue
		}

		gocv.Rectangle(img, toRect(t.Prediction.Box()), TrackColor(t.Track.ID),
			lineThickness)
	}
}
