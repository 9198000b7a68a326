package cascade

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-autoframe/provider"
)

func TestToDetections(t *testing.T) {

	dets := toDetections([]image.Rectangle{
		image.Rect(10, 20, 30, 60),
	}, 2)

	require.Len(t, dets, 1)
	assert.Equal(t, float32(40), dets[0].Position.X)
	assert.Equal(t, float32(80), dets[0].Position.Y)
	assert.Equal(t, float32(40), dets[0].Size.X)
	assert.Equal(t, float32(80), dets[0].Size.Y)
	assert.Equal(t, float32(1), dets[0].Score)
}

func TestProbe(t *testing.T) {

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.CascadeFile = filepath.Join(dir, "missing.xml")

	assert.Error(t, Probe(cfg))

	cfg.CascadeFile = dir
	assert.Error(t, Probe(cfg))

	cfg.CascadeFile = filepath.Join(dir, "face.xml")
	require.NoError(t, os.WriteFile(cfg.CascadeFile, []byte("<opencv_storage/>"), 0o644))
	assert.NoError(t, Probe(cfg))

	caps := provider.NewCapabilities(nil, Factory(cfg, nil))
	assert.Equal(t, provider.CascadeFaceDetection, caps.IdealProvider())
}

func TestDetectNotLoaded(t *testing.T) {

	b := New(DefaultConfig(), nil)

	_, err := b.Detect(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.Error(t, err)
	assert.NoError(t, b.Close())
}
