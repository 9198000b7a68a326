package provider

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestProviderParse(t *testing.T) {

	tests := []struct {
		in   string
		want Provider
	}{
		{"automatic", Automatic},
		{" NPU-FaceDetection ", NPUFaceDetection},
		{"cascade-facedetection", CascadeFaceDetection},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}

	for _, bad := range []string{"", "invalid", "gpu"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrUnknownProvider, bad)
	}
}

func mustParse(t *testing.T, s string) Provider {
	t.Helper()
	p, err := Parse(s)
	require.NoError(t, err)
	return p
}

func TestProviderYAML(t *testing.T) {

	var doc struct {
		Provider Provider `yaml:"tracking_provider"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("tracking_provider: npu-facedetection\n"), &doc))
	assert.Equal(t, NPUFaceDetection, doc.Provider)

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "tracking_provider: npu-facedetection\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte("tracking_provider: quantum\n"), &doc))
}

func TestProviderString(t *testing.T) {
	assert.Equal(t, "invalid", Invalid.String())
	assert.Equal(t, "provider(9)", Provider(9).String())
	assert.True(t, Automatic.Selectable())
	assert.False(t, Invalid.Selectable())
}

func TestCapabilitiesIdealProvider(t *testing.T) {

	npu, _ := fakeFactory(NPUFaceDetection, 20, fakeBackend{})
	cascade, _ := fakeFactory(CascadeFaceDetection, 10, fakeBackend{})

	caps := NewCapabilities(nil, cascade, npu)

	assert.Equal(t, []Provider{NPUFaceDetection, CascadeFaceDetection}, caps.Providers())
	assert.Equal(t, NPUFaceDetection, caps.IdealProvider())
	assert.True(t, caps.IsAvailable(Automatic))

	got, err := caps.Resolve(Automatic)
	require.NoError(t, err)
	assert.Equal(t, NPUFaceDetection, got)

	_, err = caps.Resolve(Provider(9))
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCapabilitiesRefresh(t *testing.T) {

	present := false
	npu, _ := fakeFactory(NPUFaceDetection, 20, fakeBackend{})
	npu.Probe = func() error {
		if !present {
			return errors.New("device not found")
		}
		return nil
	}
	cascade, _ := fakeFactory(CascadeFaceDetection, 10, fakeBackend{})

	caps := NewCapabilities(nil, npu, cascade)

	assert.False(t, caps.IsAvailable(NPUFaceDetection))
	assert.Equal(t, CascadeFaceDetection, caps.IdealProvider())

	_, err := caps.Open(NPUFaceDetection)
	assert.ErrorIs(t, err, ErrUnavailable)

	present = true
	caps.Refresh()

	assert.True(t, caps.IsAvailable(NPUFaceDetection))
	assert.Equal(t, NPUFaceDetection, caps.IdealProvider())

	b, err := caps.Open(Automatic)
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestCapabilitiesEmpty(t *testing.T) {

	caps := NewCapabilities(nil, Factory{Provider: Automatic, Name: "bogus"})

	assert.Empty(t, caps.Providers())
	assert.Equal(t, Invalid, caps.IdealProvider())
	assert.False(t, caps.IsAvailable(Automatic))

	_, err := caps.Resolve(Automatic)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMailboxOverwrite(t *testing.T) {

	var m Mailbox[int]

	_, ok := m.Take()
	assert.False(t, ok)

	m.Post(1)
	m.Post(2)

	v, ok := m.Peek()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = m.Take()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, uint64(1), m.Drops())

	_, ok = m.Take()
	assert.False(t, ok)
}

func TestMailboxConcurrent(t *testing.T) {

	var (
		m  Mailbox[int]
		wg sync.WaitGroup
	)

	for w := 0; w < 4; w++ {
		wg.Add(1)

		go func(w int) {
			defer wg.Done()

			for i := 0; i < 1000; i++ {
				m.Post(w*1000 + i)
			}
		}(w)
	}

	taken := 0

	for i := 0; i < 1000; i++ {
		if _, ok := m.Take(); ok {
			taken++
		}
	}

	wg.Wait()

	if _, ok := m.Take(); ok {
		taken++
	}

	// every post was either taken or overwritten
	assert.Equal(t, uint64(4000), uint64(taken)+m.Drops())
}

func TestPoolSubmit(t *testing.T) {

	pool := NewPool(2, 4)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ran int
	)

	for i := 0; i < 4; i++ {
		wg.Add(1)

		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}

	wg.Wait()
	assert.Equal(t, 4, ran)
	assert.Equal(t, 2, pool.Size())

	pool.Close()
	pool.Close()

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
}

func TestPoolFull(t *testing.T) {

	pool := NewPool(1, 1)

	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))

	<-started

	// worker is busy, one slot in the queue
	require.NoError(t, pool.Submit(func() {}))
	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolFull)

	close(release)
	pool.Close()
}
