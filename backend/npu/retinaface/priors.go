package retinaface

import "math"

// Prior is an anchor box in normalized model input coordinates
type Prior struct {
	CX, CY, W, H float32
}

// anchor configuration of the WIDERFACE trained mobilenet RetinaFace
var (
	minSizes = [][]int{{16, 32}, {64, 128}, {256, 512}}
	steps    = []int{8, 16, 32}
)

// Priors generates the anchor boxes for a model input of width x height.
// A 320x320 input yields 4200 priors and 640x640 yields 16800
func Priors(width, height int) []Prior {

	if width <= 0 || height <= 0 {
		return nil
	}

	var priors []Prior

	for k, step := range steps {
		rows := int(math.Ceil(float64(height) / float64(step)))
		cols := int(math.Ceil(float64(width) / float64(step)))

		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				for _, size := range minSizes[k] {
					priors = append(priors, Prior{
						CX: (float32(j) + 0.5) * float32(step) / float32(width),
						CY: (float32(i) + 0.5) * float32(step) / float32(height),
						W:  float32(size) / float32(width),
						H:  float32(size) / float32(height),
					})
				}
			}
		}
	}

	return priors
}
