// Package capture runs the acquisition loop that pulls captures from an
// open device session and publishes display-ready frames per channel.
package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"depth-recorder-go/internal/device"

	"github.com/pion/logging"
)

// Errors
var (
	ErrNotBound       = errors.New("capture: no session bound")
	ErrAlreadyRunning = errors.New("capture: worker already running")
	ErrStopTimeout    = errors.New("capture: worker did not stop in time")
)

// errorBackoff is the pause after a failed capture.
const errorBackoff = 20 * time.Millisecond

// Options configures a Worker.
type Options struct {
	PreviewWidth int // RGB frames wider than this are scaled down; 0 keeps full size
	MinFPS       int // lower bound for SetFPS
}

// Stats is a snapshot of worker counters.
type Stats struct {
	Captured  uint64
	Skipped   uint64
	Errors    uint64
	TargetFPS int
	Running   bool
}

// Worker is the acquisition worker. It is bound to at most one session at
// a time and is the only caller of that session's Capture.
type Worker struct {
	log     logging.LeveledLogger
	buffers *Buffers
	opts    Options

	mu      sync.Mutex
	session device.Session
	cancel  context.CancelFunc
	stopCh  chan struct{}
	done    chan struct{}
	running atomic.Bool

	// Frame skipping: the session delivers at maxFPS, we publish at targetFPS.
	targetFPS atomic.Int32
	maxFPS    atomic.Int32

	captured atomic.Uint64
	skipped  atomic.Uint64
	errors   atomic.Uint64
}

// NewWorker creates an idle worker publishing into buffers.
func NewWorker(buffers *Buffers, opts Options, log logging.LeveledLogger) *Worker {
	if opts.MinFPS <= 0 {
		opts.MinFPS = 1
	}
	return &Worker{log: log, buffers: buffers, opts: opts}
}

// Buffers returns the per-channel output buffers.
func (w *Worker) Buffers() *Buffers { return w.buffers }

// Bind attaches sess, delivering at most fps frames per second. The
// target FPS is reset to fps.
func (w *Worker) Bind(sess device.Session, fps int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running.Load() {
		return ErrAlreadyRunning
	}
	w.session = sess
	w.maxFPS.Store(int32(fps))
	w.targetFPS.Store(int32(fps))
	return nil
}

// Session returns the bound session, or nil.
func (w *Worker) Session() device.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// Running reports whether the acquisition loop is active.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start launches the acquisition loop on the bound session.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return ErrNotBound
	}
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.captured.Store(0)
	w.skipped.Store(0)
	w.errors.Store(0)

	go w.loop(ctx, w.session, w.stopCh, w.done)
	w.log.Infof("worker started on session %s at %d fps", w.session.ID(), w.GetFPS())
	return nil
}

// Stop signals the loop and waits up to timeout for it to exit. The
// binding is dropped either way. A loop still busy after timeout yields
// ErrStopTimeout; it exits on its own once its session is closed.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	stopCh, done, cancel := w.stopCh, w.done, w.cancel
	w.stopCh, w.done, w.cancel = nil, nil, nil
	w.session = nil
	w.mu.Unlock()

	if stopCh == nil {
		return nil
	}
	close(stopCh)
	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		w.log.Warnf("worker still running %v after stop request", timeout)
		return ErrStopTimeout
	}
}

// SetFPS changes the publish rate, clamped to [MinFPS, bound session FPS].
func (w *Worker) SetFPS(fps int) {
	maxFPS := int(w.maxFPS.Load())
	fps = max(fps, w.opts.MinFPS)
	if maxFPS > 0 {
		fps = min(fps, maxFPS)
	}
	if old := w.targetFPS.Swap(int32(fps)); int(old) != fps {
		w.log.Debugf("target fps %d -> %d", old, fps)
	}
}

// GetFPS returns the current publish rate.
func (w *Worker) GetFPS() int {
	return int(w.targetFPS.Load())
}

// GetMaxFPS returns the rate of the bound session.
func (w *Worker) GetMaxFPS() int {
	return int(w.maxFPS.Load())
}

// Stats returns a snapshot of the counters of the current run.
func (w *Worker) Stats() Stats {
	return Stats{
		Captured:  w.captured.Load(),
		Skipped:   w.skipped.Load(),
		Errors:    w.errors.Load(),
		TargetFPS: w.GetFPS(),
		Running:   w.running.Load(),
	}
}

func (w *Worker) loop(ctx context.Context, sess device.Session, stopCh, done chan struct{}) {
	defer close(done)
	defer w.running.Store(false)

	var lastPublished time.Time
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		c, err := sess.Capture(ctx)
		if err != nil {
			if errors.Is(err, device.ErrSessionClosed) || ctx.Err() != nil {
				w.log.Debugf("worker loop on session %s exiting: %v", sess.ID(), err)
				return
			}
			if n := w.errors.Add(1); n == 1 || n%50 == 0 {
				w.log.Warnf("capture failed (%d so far): %v", n, err)
			}
			select {
			case <-stopCh:
				return
			case <-time.After(errorBackoff):
			}
			continue
		}

		// Time based limiting; the session may deliver faster than requested.
		interval := time.Second / time.Duration(max(w.GetFPS(), 1))
		now := time.Now()
		if now.Sub(lastPublished) < interval {
			w.skipped.Add(1)
			w.markDropped(c)
			continue
		}
		lastPublished = now

		w.publish(c)
		if n := w.captured.Add(1); n%150 == 1 {
			w.log.Debugf("session %s: frame #%d (skipped %d)", sess.ID(), n, w.skipped.Load())
		}
	}
}

func (w *Worker) publish(c *device.Capture) {
	if c.Color != nil {
		w.buffers.Get(RGB).Write(Preview(c.Color, w.opts.PreviewWidth))
	}
	if c.Depth != nil {
		w.buffers.Get(Depth).Write(ColorizeDepth(c.Depth))
	}
	if c.IR != nil {
		w.buffers.Get(IR).Write(ColorizeIR(c.IR))
	}
}

func (w *Worker) markDropped(c *device.Capture) {
	if c.Color != nil {
		w.buffers.Get(RGB).MarkDropped()
	}
	if c.Depth != nil {
		w.buffers.Get(Depth).MarkDropped()
	}
	if c.IR != nil {
		w.buffers.Get(IR).MarkDropped()
	}
}
