/*
Package npu provides RetinaFace face detection on the Rockchip NPU as a
provider.Backend.
*/
package npu

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/swdee/go-autoframe/backend/npu/retinaface"
	"github.com/swdee/go-autoframe/backend/npu/rknn"
	"github.com/swdee/go-autoframe/provider"
	"github.com/swdee/go-autoframe/tracker"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Rank orders the NPU above CPU backends for automatic selection
const Rank = 20

// DefaultDevicePaths are the nodes exposed by the rknpu kernel driver, any
// one being present indicates an NPU
var DefaultDevicePaths = []string{
	"/dev/rknpu",
	"/sys/kernel/debug/rknpu",
	"/sys/class/devfreq/fdab0000.npu",
}

// Config of the NPU backend
type Config struct {
	// ModelFile is the RKNN compiled RetinaFace model
	ModelFile string
	// Platform is the Rockchip SoC the model was compiled for
	Platform string
	// Params are the post processing thresholds
	Params retinaface.Params
	// DevicePaths are checked by Probe
	DevicePaths []string
}

// DefaultConfig returns the configuration for the RK3588 320x320 model
func DefaultConfig() Config {
	return Config{
		ModelFile:   "data/models/rk3588/retinaface-320-rk3588.rknn",
		Platform:    "rk3588",
		Params:      retinaface.WiderFaceParams(),
		DevicePaths: DefaultDevicePaths,
	}
}

// Probe returns nil when an NPU and the model file are present
func Probe(cfg Config) error {

	found := false

	for _, path := range cfg.DevicePaths {
		if _, err := os.Stat(path); err == nil {
			found = true
			break
		}
	}

	if !found {
		return errors.New("no rknpu device found")
	}

	info, err := os.Stat(cfg.ModelFile)

	if err != nil {
		return fmt.Errorf("model file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("model file %s is a directory", cfg.ModelFile)
	}

	return nil
}

// Factory returns the provider.Factory registering the NPU backend
func Factory(cfg Config, log *zap.Logger) provider.Factory {
	return provider.Factory{
		Provider: provider.NPUFaceDetection,
		Name:     "RetinaFace (Rockchip NPU)",
		Rank:     Rank,
		Probe: func() error {
			return Probe(cfg)
		},
		New: func() (provider.Backend, error) {
			return New(cfg, log), nil
		},
	}
}

// Backend runs RetinaFace on the NPU
type Backend struct {
	cfg     Config
	log     *zap.Logger
	rt      *rknn.Runtime
	decoder *retinaface.Decoder
	// width and height of the model input
	width, height int
	// Mats reused between frames
	rgb, resized, input gocv.Mat
}

// New returns an unloaded NPU backend
func New(cfg Config, log *zap.Logger) *Backend {

	if log == nil {
		log = zap.NewNop()
	}

	return &Backend{
		cfg: cfg,
		log: log,
	}
}

// Load initialises the RKNN runtime with the model
func (b *Backend) Load() error {

	core, err := rknn.PlatformCoreMask(b.cfg.Platform)

	if err != nil {
		return err
	}

	rt, err := rknn.NewRuntime(b.cfg.ModelFile, core)

	if err != nil {
		return fmt.Errorf("error initializing RKNN runtime: %w", err)
	}

	width, height, channels := rt.InputSize()

	if channels != 3 || len(rt.OutputAttrs()) < 2 {
		rt.Close()
		return fmt.Errorf("model input %dx%dx%d with %d outputs is not RetinaFace",
			width, height, channels, len(rt.OutputAttrs()))
	}

	b.rt = rt
	b.width, b.height = width, height
	b.decoder = retinaface.NewDecoder(width, height, b.cfg.Params)
	b.rgb = gocv.NewMat()
	b.resized = gocv.NewMat()
	b.input = gocv.NewMat()

	for _, attr := range rt.OutputAttrs() {
		b.log.Debug("model output", zap.Stringer("tensor", attr))
	}

	b.log.Info("npu backend loaded",
		zap.String("model", b.cfg.ModelFile),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("priors", b.decoder.NumPriors()),
	)

	return nil
}

// Detect runs face detection on img
func (b *Backend) Detect(img image.Image) ([]tracker.Detection, error) {

	if b.rt == nil {
		return nil, errors.New("backend not loaded")
	}

	// despite the name the Mat is in BGR order
	src, err := gocv.ImageToMatRGB(img)

	if err != nil {
		return nil, fmt.Errorf("error converting image: %w", err)
	}

	defer src.Close()

	return b.DetectMat(src, true)
}

// DetectMat runs face detection on a Mat, bgr is true when mat is in
// OpenCV's native BGR channel order
func (b *Backend) DetectMat(mat gocv.Mat, bgr bool) ([]tracker.Detection, error) {

	if b.rt == nil {
		return nil, errors.New("backend not loaded")
	}

	rgb := mat

	if bgr {
		gocv.CvtColor(mat, &b.rgb, gocv.ColorBGRToRGB)
		rgb = b.rgb
	}

	lb := retinaface.NewLetterbox(rgb.Cols(), rgb.Rows(), b.width, b.height)

	gocv.Resize(rgb, &b.resized, image.Pt(lb.ResizeWidth, lb.ResizeHeight),
		0, 0, gocv.InterpolationArea)

	top, bottom, left, right := lb.Border()
	gocv.CopyMakeBorder(b.resized, &b.input, top, bottom, left, right,
		gocv.BorderConstant, color.RGBA{R: 0, G: 0, B: 0, A: 255})

	outputs, err := b.rt.Inference(b.input)

	if err != nil {
		return nil, fmt.Errorf("runtime inferencing failed: %w", err)
	}

	// outputs are box locations, scores and landmarks
	return b.decoder.Decode(outputs[0], outputs[1], lb)
}

// Close unloads the model and frees the Mats
func (b *Backend) Close() error {

	if b.rt == nil {
		return nil
	}

	b.rgb.Close()
	b.resized.Close()
	b.input.Close()

	err := b.rt.Close()
	b.rt = nil

	return err
}
