package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"depth-recorder-go/internal/device"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("test")
}

func openSynthetic(t *testing.T, fps string) device.Session {
	t.Helper()
	sdk := device.NewSynthetic(testLogger(), nil)
	require.NoError(t, sdk.InitializeLibraries())
	cfg := device.BuildConfiguration(map[string]string{
		device.KeyCameraFPS:       fps,
		device.KeyColorResolution: "64x48",
		device.KeyDepthMode:       "nfov_2x2binned",
	})
	sess, err := sdk.StartDevice(context.Background(), cfg, device.RecordOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

// stuckSession ignores cancellation until it is closed. entered is closed
// once the first Capture call is blocked.
type stuckSession struct {
	closed      chan struct{}
	entered     chan struct{}
	enteredOnce sync.Once
}

func newStuckSession() *stuckSession {
	return &stuckSession{closed: make(chan struct{}), entered: make(chan struct{})}
}

func (s *stuckSession) ID() string                          { return "stuck" }
func (s *stuckSession) RecordPath() string                  { return "" }
func (s *stuckSession) SetColorControl(string, int32) error { return nil }

func (s *stuckSession) Close() error {
	close(s.closed)
	return nil
}

func (s *stuckSession) Capture(context.Context) (*device.Capture, error) {
	s.enteredOnce.Do(func() { close(s.entered) })
	<-s.closed
	return nil, device.ErrSessionClosed
}

type flakySession struct {
	stuckSession
}

func (s *flakySession) Capture(ctx context.Context) (*device.Capture, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, errors.New("usb hiccup")
}

func TestWorkerStartRequiresBinding(t *testing.T) {
	w := NewWorker(NewBuffers(), Options{}, testLogger())
	assert.ErrorIs(t, w.Start(context.Background()), ErrNotBound)
	assert.False(t, w.Running())
	assert.NoError(t, w.Stop(time.Second))
}

func TestWorkerDeliversAllChannels(t *testing.T) {
	sess := openSynthetic(t, "60")
	w := NewWorker(NewBuffers(), Options{PreviewWidth: 32}, testLogger())
	require.NoError(t, w.Bind(sess, 60))
	assert.Same(t, sess, w.Session())
	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.Running())
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyRunning)
	assert.ErrorIs(t, w.Bind(sess, 60), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		for _, ch := range Channels {
			if w.Buffers().Get(ch).FrameCount() == 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop(time.Second))
	assert.False(t, w.Running())
	assert.Nil(t, w.Session())

	rgb := w.Buffers().Get(RGB).Read()
	assert.Equal(t, 32, rgb.Bounds().Dx())
	assert.Equal(t, 320, w.Buffers().Get(Depth).Read().Bounds().Dx())

	st := w.Stats()
	assert.NotZero(t, st.Captured)
	assert.False(t, st.Running)
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	sess := openSynthetic(t, "30")
	w := NewWorker(NewBuffers(), Options{}, testLogger())
	require.NoError(t, w.Bind(sess, 30))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop(time.Second))
	require.NoError(t, w.Stop(time.Second))
}

func TestWorkerStopTimeout(t *testing.T) {
	sess := newStuckSession()
	w := NewWorker(NewBuffers(), Options{}, testLogger())
	require.NoError(t, w.Bind(sess, 30))
	require.NoError(t, w.Start(context.Background()))

	select {
	case <-sess.entered:
	case <-time.After(time.Second):
		t.Fatal("worker never reached Capture")
	}
	err := w.Stop(30 * time.Millisecond)
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.True(t, w.Running())

	// closing the session lets the loop finish
	require.NoError(t, sess.Close())
	assert.Eventually(t, func() bool { return !w.Running() }, time.Second, 5*time.Millisecond)
}

func TestWorkerCountsErrors(t *testing.T) {
	sess := &flakySession{stuckSession: stuckSession{closed: make(chan struct{})}}
	w := NewWorker(NewBuffers(), Options{}, testLogger())
	require.NoError(t, w.Bind(sess, 30))
	require.NoError(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return w.Stats().Errors >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(time.Second))
}

func TestWorkerFPSClamping(t *testing.T) {
	w := NewWorker(NewBuffers(), Options{MinFPS: 5}, testLogger())
	require.NoError(t, w.Bind(newStuckSession(), 30))
	assert.Equal(t, 30, w.GetFPS())
	assert.Equal(t, 30, w.GetMaxFPS())

	w.SetFPS(2)
	assert.Equal(t, 5, w.GetFPS())
	w.SetFPS(100)
	assert.Equal(t, 30, w.GetFPS())
	w.SetFPS(12)
	assert.Equal(t, 12, w.GetFPS())
}

func TestWorkerSkipsAboveTarget(t *testing.T) {
	sess := openSynthetic(t, "120")
	w := NewWorker(NewBuffers(), Options{MinFPS: 1}, testLogger())
	require.NoError(t, w.Bind(sess, 120))
	w.SetFPS(10)
	require.NoError(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return w.Stats().Skipped > 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop(time.Second))
	assert.NotZero(t, w.Buffers().Get(RGB).Dropped())
}
