package control

import (
	"context"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"depth-recorder-go/internal/capture"
	"depth-recorder-go/internal/device"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("test")
}

type recordingSink struct {
	mu     sync.Mutex
	rgb    []image.Image
	depth  []image.Image
	ir     []image.Image
	resets int
}

func (s *recordingSink) SetRGBImage(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rgb = append(s.rgb, img)
}

func (s *recordingSink) SetDepthImage(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth = append(s.depth, img)
}

func (s *recordingSink) SetIRImage(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ir = append(s.ir, img)
}

func (s *recordingSink) ResetPanels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

type nopWriter struct {
	mu     sync.Mutex
	frames int
	closed bool
}

func (w *nopWriter) WriteFrame([]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames++
	return nil
}

func (w *nopWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type fixture struct {
	sdk     *device.Synthetic
	worker  *capture.Worker
	sink    *recordingSink
	ctrl    *Controller
	dir     string
	paths   []string
	writers []*nopWriter
}

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir(), sink: &recordingSink{}}
	f.sdk = device.NewSynthetic(testLogger(), func(path string, fps int) (device.FrameWriter, error) {
		w := &nopWriter{}
		f.paths = append(f.paths, path)
		f.writers = append(f.writers, w)
		return w, nil
	})
	f.worker = capture.NewWorker(capture.NewBuffers(), capture.Options{}, testLogger())
	f.ctrl = NewController(f.sdk, f.worker, f.sink, Options{
		Selection: func() map[string]string {
			return map[string]string{
				device.KeyCameraFPS:       "60",
				device.KeyColorResolution: "32x24",
				device.KeyDepthMode:       "nfov_2x2binned",
			}
		},
		VideoDir:    f.dir,
		Debug:       true,
		StopTimeout: time.Second,
		Now:         func() time.Time { return fixedNow },
	}, testLogger())
	t.Cleanup(func() { f.ctrl.Shutdown(context.Background()) })
	return f
}

func TestControlsFor(t *testing.T) {
	assert.Equal(t, Controls{
		DeviceLabel: "Device open", StreamLabel: "▶", RecordLabel: "●",
	}, ControlsFor(StateClosed))
	assert.Equal(t, Controls{
		DeviceLabel: "Device close", StreamLabel: "▶", StreamEnabled: true, RecordLabel: "●", RecordEnabled: true,
	}, ControlsFor(StateOpenIdle))
	assert.Equal(t, Controls{
		DeviceLabel: "Device close", StreamLabel: "■", StreamEnabled: true, RecordLabel: "●",
	}, ControlsFor(StateOpenStreaming))
	assert.Equal(t, Controls{
		DeviceLabel: "Device close", StreamLabel: "▶", RecordLabel: "■", RecordEnabled: true,
	}, ControlsFor(StateOpenRecording))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "open-recording", StateOpenRecording.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.False(t, StateClosed.Open())
	assert.True(t, StateOpenIdle.Open())
	assert.False(t, StateOpenIdle.Active())
	assert.True(t, StateOpenStreaming.Active())
}

func TestToggleDeviceOpenClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ctrl.ToggleDevice(ctx))
	assert.Equal(t, StateOpenIdle, f.ctrl.State())
	assert.Equal(t, "Device close", f.ctrl.Controls().DeviceLabel)
	cfg := f.ctrl.Configuration()
	require.NotNil(t, cfg)
	assert.True(t, cfg.IsSet(device.KeyCameraFPS))
	assert.Nil(t, f.ctrl.Session())

	require.NoError(t, f.ctrl.ToggleDevice(ctx))
	assert.Equal(t, StateClosed, f.ctrl.State())
	assert.Equal(t, "Device open", f.ctrl.Controls().DeviceLabel)
	assert.Nil(t, f.ctrl.Configuration())
	assert.Equal(t, 1, f.sink.resets)
}

func TestToggleDeviceProbeFailure(t *testing.T) {
	f := newFixture(t)
	f.sdk.OpenErr = device.ErrDeviceNotFound

	err := f.ctrl.ToggleDevice(context.Background())
	var ue *device.UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
	assert.Equal(t, StateClosed, f.ctrl.State())
	assert.Nil(t, f.ctrl.Configuration())
}

func TestTogglesRequireOpenDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.ErrorIs(t, f.ctrl.ToggleStreaming(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, f.ctrl.ToggleRecording(ctx), ErrInvalidTransition)
	assert.Equal(t, StateClosed, f.ctrl.State())
}

func TestStreamingAndForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.ToggleDevice(ctx))

	require.NoError(t, f.ctrl.ToggleStreaming(ctx))
	assert.Equal(t, StateOpenStreaming, f.ctrl.State())
	ctl := f.ctrl.Controls()
	assert.Equal(t, "■", ctl.StreamLabel)
	assert.False(t, ctl.RecordEnabled)
	sess := f.ctrl.Session()
	require.NotNil(t, sess)
	assert.Empty(t, sess.RecordPath())
	assert.True(t, f.worker.Running())

	require.Eventually(t, func() bool {
		f.ctrl.Forward(f.sink)
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return len(f.sink.rgb) > 0 && len(f.sink.depth) > 0 && len(f.sink.ir) > 0
	}, 2*time.Second, 10*time.Millisecond)

	// recording is excluded while streaming
	assert.ErrorIs(t, f.ctrl.ToggleRecording(ctx), ErrInvalidTransition)

	require.NoError(t, f.ctrl.ToggleStreaming(ctx))
	assert.Equal(t, StateOpenIdle, f.ctrl.State())
	assert.Equal(t, "▶", f.ctrl.Controls().StreamLabel)
	assert.True(t, f.ctrl.Controls().RecordEnabled)
	assert.False(t, f.worker.Running())
	assert.Nil(t, f.ctrl.Session())

	_, err := sess.Capture(ctx)
	assert.ErrorIs(t, err, device.ErrSessionClosed)
}

func TestForwardOnlyNewFrames(t *testing.T) {
	f := newFixture(t)
	buffers := f.worker.Buffers()
	assert.False(t, f.ctrl.Forward(f.sink))

	buffers.Get(capture.RGB).Write(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.True(t, f.ctrl.Forward(f.sink))
	assert.False(t, f.ctrl.Forward(f.sink))
	assert.Len(t, f.sink.rgb, 1)
	assert.Empty(t, f.sink.depth)
}

func TestRecordingLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.ToggleDevice(ctx))

	require.NoError(t, f.ctrl.ToggleRecording(ctx))
	assert.Equal(t, StateOpenRecording, f.ctrl.State())
	ctl := f.ctrl.Controls()
	assert.Equal(t, "■", ctl.RecordLabel)
	assert.False(t, ctl.StreamEnabled)

	want := filepath.Join(f.dir, "2024_03_05_14_07_09.mkv")
	require.Len(t, f.paths, 1)
	assert.Equal(t, want, f.paths[0])
	assert.Equal(t, want, f.ctrl.Session().RecordPath())

	assert.ErrorIs(t, f.ctrl.ToggleStreaming(ctx), ErrInvalidTransition)

	require.Eventually(t, func() bool {
		w := f.writers[0]
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.frames > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.ctrl.ToggleRecording(ctx))
	assert.Equal(t, StateOpenIdle, f.ctrl.State())
	assert.Equal(t, "●", f.ctrl.Controls().RecordLabel)
	assert.True(t, f.writers[0].closed)
}

func TestRecordingMissingDirectory(t *testing.T) {
	f := newFixture(t)
	f.ctrl.opts.VideoDir = filepath.Join(f.dir, "missing")
	ctx := context.Background()
	require.NoError(t, f.ctrl.ToggleDevice(ctx))

	err := f.ctrl.ToggleRecording(ctx)
	assert.ErrorIs(t, err, device.ErrRecordTarget)
	assert.Equal(t, StateOpenIdle, f.ctrl.State())
	assert.False(t, f.worker.Running())
}

func TestCloseDeviceWhileRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.ToggleDevice(ctx))
	require.NoError(t, f.ctrl.ToggleRecording(ctx))
	sess := f.ctrl.Session()

	require.NoError(t, f.ctrl.ToggleDevice(ctx))
	assert.Equal(t, StateClosed, f.ctrl.State())
	assert.False(t, f.worker.Running())
	assert.True(t, f.writers[0].closed)
	_, err := sess.Capture(ctx)
	assert.ErrorIs(t, err, device.ErrSessionClosed)
	assert.Zero(t, f.worker.Buffers().Get(capture.RGB).FrameCount())

	// the device can be opened and used again
	require.NoError(t, f.ctrl.ToggleDevice(ctx))
	require.NoError(t, f.ctrl.ToggleStreaming(ctx))
	assert.Equal(t, StateOpenStreaming, f.ctrl.State())
}

func TestShutdownWhenClosed(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.ctrl.Shutdown(context.Background()))
	assert.Zero(t, f.sink.resets)
}
