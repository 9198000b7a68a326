package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"net/http"
	"time"

	"github.com/swdee/go-autoframe"
	"github.com/swdee/go-autoframe/backend/cascade"
	"github.com/swdee/go-autoframe/backend/npu"
	"github.com/swdee/go-autoframe/backend/npu/rknn"
	"github.com/swdee/go-autoframe/provider"
	"github.com/swdee/go-autoframe/render"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// FPS is the number of FPS to simulate
	FPS         = int64(30)
	FPSinterval = time.Duration(float64(time.Second) / float64(FPS))
)

// Demo defines the struct for running the autoframing demo
type Demo struct {
	log *zap.Logger
	// vidBuffer buffers the video frames into memory
	vidBuffer []gocv.Mat
	// caps is shared by every client's filter
	caps *provider.Capabilities
	// settings are applied to each new filter
	settings autoframe.Settings
	// style of the debug overlay
	style render.Style
}

// NewDemo returns an instance of Demo, a streaming HTTP server showing the
// video cropped to the people in it
func NewDemo(log *zap.Logger, vidFile string, caps *provider.Capabilities,
	settings autoframe.Settings) (*Demo, error) {

	d := &Demo{
		log:      log,
		caps:     caps,
		settings: settings,
		style:    render.DefaultStyle(),
	}

	if err := d.bufferVideo(vidFile); err != nil {
		return nil, fmt.Errorf("error buffering video: %w", err)
	}

	if len(d.vidBuffer) == 0 {
		return nil, fmt.Errorf("video %s has no frames", vidFile)
	}

	for _, p := range caps.Providers() {
		log.Info("provider available",
			zap.Stringer("provider", p),
			zap.String("name", caps.Name(p)),
		)
	}

	return d, nil
}

// bufferVideo reads in the video frames and saves them to a buffer
func (d *Demo) bufferVideo(vidFile string) error {

	video, err := gocv.VideoCaptureFile(vidFile)

	if err != nil {
		return err
	}

	defer video.Close()

	d.vidBuffer = make([]gocv.Mat, 0)

	for {
		img := gocv.NewMat()

		if ok := video.Read(&img); !ok {
			img.Close()
			break
		}

		if img.Empty() {
			img.Close()
			continue
		}

		d.vidBuffer = append(d.vidBuffer, img)
	}

	return nil
}

// Stream is the HTTP handler function used to stream video frames to browser.
// Each client gets its own Filter
func (d *Demo) Stream(w http.ResponseWriter, r *http.Request) {

	d.log.Info("new client connection established")

	filter, err := autoframe.NewFilter(d.caps, d.settings,
		autoframe.WithLogger(d.log), autoframe.WithTrail(30))

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	defer filter.Close()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	frameNum := -1
	last := time.Now()

	ticker := time.NewTicker(FPSinterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			d.log.Info("client disconnected")
			return

		case now := <-ticker.C:

			frameNum++
			if frameNum > len(d.vidBuffer)-1 {
				frameNum = 0
			}

			seconds := float32(now.Sub(last).Seconds())
			last = now

			buf, err := d.ProcessFrame(filter, d.vidBuffer[frameNum], seconds)

			if err != nil {
				d.log.Warn("error processing frame", zap.Int("frame", frameNum), zap.Error(err))
				continue
			}

			w.Write([]byte("--frame\r\n"))
			w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
			w.Write(buf.GetBytes())
			w.Write([]byte("\r\n"))

			buf.Close()

			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// ProcessFrame submits the frame for detection, advances the filter and
// returns either the cropped output or the debug overlay encoded as JPG
func (d *Demo) ProcessFrame(filter *autoframe.Filter, frame gocv.Mat,
	seconds float32) (*gocv.NativeByteBuffer, error) {

	src, err := frame.ToImage()

	if err != nil {
		return nil, fmt.Errorf("error converting frame: %w", err)
	}

	filter.SubmitFrame(src)
	filter.VideoTick(seconds)

	if filter.Settings().DebugOverlay {

		resImg := frame.Clone()
		defer resImg.Close()

		render.Overlay(&resImg, filter.Snapshot(), filter.Trail(), d.style)
		d.annotate(&resImg, filter)

		return gocv.IMEncode(".jpg", resImg)
	}

	width, height := filter.OutputSize()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	if err := filter.Render(dst, src); err != nil {
		return nil, err
	}

	resImg, err := gocv.ImageToMatRGB(dst)

	if err != nil {
		return nil, fmt.Errorf("error converting output: %w", err)
	}

	defer resImg.Close()

	return gocv.IMEncode(".jpg", resImg)
}

// annotate adds the provider state to the top of the image
func (d *Demo) annotate(img *gocv.Mat, filter *autoframe.Filter) {

	active, state := filter.Provider()
	text := fmt.Sprintf("Provider: %s (%s)", active, state)

	if err := filter.ProviderErr(); err != nil {
		text += ": " + err.Error()
	}

	gocv.PutText(img, text, image.Pt(4, 14), gocv.FontHersheyDuplex, 0.5,
		color.RGBA{R: 255, G: 0, B: 0, A: 255}, 1)
}

func main() {

	vidFile := flag.String("v", "../data/palace.mp4", "Video file to run autoframing on")
	settingsFile := flag.String("s", "", "YAML settings file, defaults are used when empty")
	modelFile := flag.String("m", "../data/models/rk3588/retinaface-320-rk3588.rknn", "RKNN compiled RetinaFace model file")
	cascadeFile := flag.String("c", "../data/haarcascade_frontalface_default.xml", "OpenCV Haar cascade file for CPU face detection")
	platform := flag.String("p", "rk3588", "Rockchip CPU Model number [rk3562|rk3566|rk3568|rk3576|rk3582|rk3588]")
	httpAddr := flag.String("a", "localhost:8080", "HTTP Address to run server on, format address:port")
	debug := flag.Bool("d", false, "Show the debug overlay instead of the cropped output")

	flag.Parse()

	logger, err := zap.NewDevelopment()

	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}

	defer logger.Sync()

	if err := rknn.PinFastCores(*platform); err != nil {
		logger.Warn("failed to set CPU affinity", zap.Error(err))
	}

	settings := autoframe.DefaultSettings()

	if *settingsFile != "" {
		settings, err = autoframe.LoadSettings(*settingsFile)

		if err != nil {
			logger.Fatal("error loading settings", zap.Error(err))
		}
	}

	if *debug {
		settings.DebugOverlay = true
	}

	npuCfg := npu.DefaultConfig()
	npuCfg.ModelFile = *modelFile
	npuCfg.Platform = *platform

	cascadeCfg := cascade.DefaultConfig()
	cascadeCfg.CascadeFile = *cascadeFile

	caps := provider.NewCapabilities(logger.Named("capabilities"),
		npu.Factory(npuCfg, logger.Named("npu")),
		cascade.Factory(cascadeCfg, logger.Named("cascade")),
	)

	demo, err := NewDemo(logger, *vidFile, caps, settings)

	if err != nil {
		logger.Fatal("error creating demo", zap.Error(err))
	}

	http.HandleFunc("/stream", demo.Stream)

	logger.Info(fmt.Sprintf("Open browser and view video at http://%s/stream", *httpAddr))
	logger.Fatal("http server stopped", zap.Error(http.ListenAndServe(*httpAddr, nil)))
}
