/*
Package cascade provides OpenCV Haar cascade face detection on the CPU as a
provider.Backend.
*/
package cascade

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/swdee/go-autoframe/provider"
	"github.com/swdee/go-autoframe/tracker"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Rank orders the cascade below accelerated backends for automatic
// selection
const Rank = 10

// Config of the cascade backend
type Config struct {
	// CascadeFile is the Haar cascade XML definition
	CascadeFile string
	// DetectWidth is the width frames are downscaled to before detection,
	// 0 detects at the source size
	DetectWidth int
	// ScaleFactor is the image pyramid step, must be > 1
	ScaleFactor float64
	// MinNeighbors is how many overlapping candidates a face needs
	MinNeighbors int
	// MinSize is the smallest face side in detection pixels
	MinSize int
}

// DefaultConfig returns the configuration for the OpenCV frontal face
// cascade
func DefaultConfig() Config {
	return Config{
		CascadeFile:  "data/haarcascade_frontalface_default.xml",
		DetectWidth:  480,
		ScaleFactor:  1.1,
		MinNeighbors: 4,
		MinSize:      24,
	}
}

// Probe returns nil when the cascade file is present
func Probe(cfg Config) error {

	info, err := os.Stat(cfg.CascadeFile)

	if err != nil {
		return fmt.Errorf("cascade file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("cascade file %s is a directory", cfg.CascadeFile)
	}

	return nil
}

// Factory returns the provider.Factory registering the cascade backend
func Factory(cfg Config, log *zap.Logger) provider.Factory {
	return provider.Factory{
		Provider: provider.CascadeFaceDetection,
		Name:     "Haar cascade (OpenCV)",
		Rank:     Rank,
		Probe: func() error {
			return Probe(cfg)
		},
		New: func() (provider.Backend, error) {
			return New(cfg, log), nil
		},
	}
}

// Backend detects faces with a gocv CascadeClassifier
type Backend struct {
	cfg        Config
	log        *zap.Logger
	classifier gocv.CascadeClassifier
	loaded     bool
	// Mats reused between frames
	grey, small gocv.Mat
}

// New returns an unloaded cascade backend
func New(cfg Config, log *zap.Logger) *Backend {

	if log == nil {
		log = zap.NewNop()
	}

	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = DefaultConfig().ScaleFactor
	}

	return &Backend{
		cfg: cfg,
		log: log,
	}
}

// Load reads the cascade definition
func (b *Backend) Load() error {

	b.classifier = gocv.NewCascadeClassifier()

	if !b.classifier.Load(b.cfg.CascadeFile) {
		b.classifier.Close()
		return fmt.Errorf("error reading cascade file: %s", b.cfg.CascadeFile)
	}

	b.grey = gocv.NewMat()
	b.small = gocv.NewMat()
	b.loaded = true

	b.log.Info("cascade backend loaded", zap.String("cascade", b.cfg.CascadeFile))

	return nil
}

// Detect runs face detection on img
func (b *Backend) Detect(img image.Image) ([]tracker.Detection, error) {

	if !b.loaded {
		return nil, errors.New("backend not loaded")
	}

	src, err := gocv.ImageToMatRGB(img)

	if err != nil {
		return nil, fmt.Errorf("error converting image: %w", err)
	}

	defer src.Close()

	return b.DetectMat(src)
}

// DetectMat runs face detection on a BGR Mat
func (b *Backend) DetectMat(mat gocv.Mat) ([]tracker.Detection, error) {

	if !b.loaded {
		return nil, errors.New("backend not loaded")
	}

	if mat.Empty() {
		return nil, nil
	}

	gocv.CvtColor(mat, &b.grey, gocv.ColorBGRToGray)

	scale := float32(1)
	work := b.grey

	if b.cfg.DetectWidth > 0 && mat.Cols() > b.cfg.DetectWidth {
		scale = float32(mat.Cols()) / float32(b.cfg.DetectWidth)
		height := int(float32(mat.Rows()) / scale)

		gocv.Resize(b.grey, &b.small, image.Pt(b.cfg.DetectWidth, height),
			0, 0, gocv.InterpolationArea)
		work = b.small
	}

	gocv.EqualizeHist(work, &work)

	rects := b.classifier.DetectMultiScaleWithParams(work, b.cfg.ScaleFactor,
		b.cfg.MinNeighbors, 0, image.Pt(b.cfg.MinSize, b.cfg.MinSize), image.Pt(0, 0))

	return toDetections(rects, scale), nil
}

// toDetections maps rectangles in detection pixels back to source pixels.
// The cascade gives no confidence so every face scores 1
func toDetections(rects []image.Rectangle, scale float32) []tracker.Detection {

	dets := make([]tracker.Detection, 0, len(rects))

	for _, r := range rects {
		dets = append(dets, tracker.NewDetection(
			float32(r.Min.X)*scale,
			float32(r.Min.Y)*scale,
			float32(r.Max.X)*scale,
			float32(r.Max.Y)*scale,
			1,
		))
	}

	return dets
}

// Close frees the classifier and Mats
func (b *Backend) Close() error {

	if !b.loaded {
		return nil
	}

	b.loaded = false
	b.grey.Close()
	b.small.Close()

	return b.classifier.Close()
}
