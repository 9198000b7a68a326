package render

import (
	"image"
	"image/color"

	clipper "github.com/ctessum/go.clipper"
	"github.com/swdee/go-autoframe/tracker"
	"gocv.io/x/gocv"
)

// Outline returns the merged contour of the given boxes grown by margin
// pixels.  Overlapping boxes merge into one polygon, disjoint boxes give
// one polygon each
func Outline(boxes []tracker.Box, margin float64) [][]image.Point {

	co := clipper.NewClipperOffset()
	added := 0

	for _, b := range boxes {

		if !b.Valid() {
			continue
		}

		// every box is wound the same way so the union treats none as a hole
		path := clipper.Path{
			&clipper.IntPoint{X: clipper.CInt(b.Left()), Y: clipper.CInt(b.Top())},
			&clipper.IntPoint{X: clipper.CInt(b.Right()), Y: clipper.CInt(b.Top())},
			&clipper.IntPoint{X: clipper.CInt(b.Right()), Y: clipper.CInt(b.Bottom())},
			&clipper.IntPoint{X: clipper.CInt(b.Left()), Y: clipper.CInt(b.Bottom())},
		}

		co.AddPath(path, clipper.JtRound, clipper.EtClosedPolygon)
		added++
	}

	if added == 0 {
		return nil
	}

	// the offset result is the union of all grown paths
	solution := co.Execute(margin)

	polys := make([][]image.Point, 0, len(solution))

	for _, sol := range solution {

		if len(sol) < 3 {
			continue
		}

		poly := make([]image.Point, 0, len(sol))

		for _, pt := range sol {
			poly = append(poly, image.Point{X: int(pt.X), Y: int(pt.Y)})
		}

		polys = append(polys, poly)
	}

	return polys
}

// GroupOutline draws the merged contour of the aspected boxes of all valid
// predictions
func GroupOutline(img *gocv.Mat, targets []tracker.TargetView, margin float64,
	clr color.RGBA, lineThickness int) {

	boxes := make([]tracker.Box, 0, len(targets))

	for _, t := range targets {
		if t.Prediction.Valid {
			boxes = append(boxes, t.Prediction.Box())
		}
	}

	polys := Outline(boxes, margin)

	if len(polys) == 0 {
		return
	}

	pv := gocv.NewPointsVectorFromPoints(polys)
	defer pv.Close()

	gocv.Polylines(img, pv, true, clr, lineThickness)
}
