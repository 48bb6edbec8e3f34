// Package control implements the main control surface logic: the device
// open/close, streaming and recording toggles and the forwarding of new
// frames to the display panels.
package control

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"depth-recorder-go/internal/capture"
	"depth-recorder-go/internal/device"

	"github.com/pion/logging"
)

// Sink receives display frames. Implementations must be safe to call from
// the goroutine that calls Forward and from the toggles.
type Sink interface {
	SetRGBImage(img image.Image)
	SetDepthImage(img image.Image)
	SetIRImage(img image.Image)
	// ResetPanels restores the placeholder text of every panel.
	ResetPanels()
}

// Options configures a Controller.
type Options struct {
	// Selection returns the current device options; it is copied onto a
	// fresh Configuration every time the device is opened.
	Selection    func() map[string]string
	VideoDir     string
	Debug        bool // log the recording path
	ProbeTimeout time.Duration
	StopTimeout  time.Duration
	Now          func() time.Time
}

// Controller serializes every state transition of the control surface.
type Controller struct {
	sdk    device.SDK
	worker *capture.Worker
	sink   Sink
	log    logging.LeveledLogger
	opts   Options

	mu      sync.Mutex
	state   State
	cfg     *device.Configuration
	session device.Session

	fwdMu   sync.Mutex
	lastSeq [3]uint64
}

// NewController creates a controller in StateClosed. sink is reset when
// the device is closed.
func NewController(sdk device.SDK, worker *capture.Worker, sink Sink, opts Options, log logging.LeveledLogger) *Controller {
	if opts.Selection == nil {
		opts.Selection = func() map[string]string { return nil }
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{sdk: sdk, worker: worker, sink: sink, log: log, opts: opts}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Controls returns the button labels for the current state.
func (c *Controller) Controls() Controls {
	return ControlsFor(c.State())
}

// Configuration returns the configuration of the open device, or nil.
func (c *Controller) Configuration() *device.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Session returns the active session, or nil.
func (c *Controller) Session() device.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ToggleDevice opens the device when closed and closes it otherwise.
//
// Opening builds a Configuration from the current selection and runs the
// pre-flight probe; on failure the state is unchanged and the probe error
// (a *device.UnavailableError) is returned. Closing stops any active
// streaming or recording first and resets the panels; the device is closed
// even when stopping reports an error.
func (c *Controller) ToggleDevice(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		cfg := device.BuildConfiguration(c.opts.Selection())
		pctx := ctx
		if c.opts.ProbeTimeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, c.opts.ProbeTimeout)
			defer cancel()
		}
		if err := device.CheckDevice(pctx, c.sdk, cfg, c.log); err != nil {
			return err
		}
		c.cfg = cfg
		c.state = StateOpenIdle
		c.log.Infof("device opened (%s)", cfg)
		return nil
	}

	var err error
	if c.state.Active() {
		err = c.deactivate()
	}
	c.resetPanels()
	c.cfg = nil
	c.state = StateClosed
	c.log.Infof("device closed")
	return err
}

// ToggleStreaming starts preview-only acquisition from StateOpenIdle, or
// stops it from StateOpenStreaming.
func (c *Controller) ToggleStreaming(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateOpenIdle:
		return c.activate(ctx, false)
	case StateOpenStreaming:
		return c.deactivate()
	}
	return fmt.Errorf("%w: streaming toggle in state %s", ErrInvalidTransition, c.state)
}

// ToggleRecording starts acquisition with recording to a new timestamped
// file from StateOpenIdle, or stops it from StateOpenRecording.
func (c *Controller) ToggleRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateOpenIdle:
		return c.activate(ctx, true)
	case StateOpenRecording:
		return c.deactivate()
	}
	return fmt.Errorf("%w: recording toggle in state %s", ErrInvalidTransition, c.state)
}

// Shutdown closes the device if it is open.
func (c *Controller) Shutdown(ctx context.Context) error {
	if !c.State().Open() {
		return nil
	}
	return c.ToggleDevice(ctx)
}

// activate opens a session and starts the worker on it. c.mu is held.
func (c *Controller) activate(ctx context.Context, record bool) error {
	var rec device.RecordOptions
	if record {
		rec = device.RecordOptions{
			Enabled: true,
			Path:    device.RecordingPath(c.opts.VideoDir, c.opts.Now()),
		}
		if c.opts.Debug {
			c.log.Infof("recording path: %s", rec.Path)
		}
	}

	sess, err := c.sdk.StartDevice(ctx, c.cfg, rec)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	fps, _ := c.cfg.FPS()
	if err := c.worker.Bind(sess, fps); err != nil {
		sess.Close()
		return err
	}
	if err := c.worker.Start(context.WithoutCancel(ctx)); err != nil {
		sess.Close()
		return err
	}

	c.session = sess
	if record {
		c.state = StateOpenRecording
		c.log.Infof("recording started (session %s)", sess.ID())
	} else {
		c.state = StateOpenStreaming
		c.log.Infof("streaming started (session %s)", sess.ID())
	}
	return nil
}

// deactivate returns to StateOpenIdle, joins the worker and then closes
// the session. The session is closed even when the join times out, in
// which case capture.ErrStopTimeout is returned. c.mu is held.
func (c *Controller) deactivate() error {
	was := c.state
	c.state = StateOpenIdle

	stopErr := c.worker.Stop(c.opts.StopTimeout)
	if stopErr != nil {
		c.log.Warnf("stopping %s: %v", was, stopErr)
	}

	var closeErr error
	if c.session != nil {
		closeErr = c.session.Close()
		c.log.Infof("%s stopped (session %s)", was, c.session.ID())
		c.session = nil
	}

	if stopErr != nil {
		return stopErr
	}
	if closeErr != nil {
		return fmt.Errorf("close session: %w", closeErr)
	}
	return nil
}

func (c *Controller) resetPanels() {
	c.fwdMu.Lock()
	c.worker.Buffers().Reset()
	c.lastSeq = [3]uint64{}
	c.fwdMu.Unlock()
	if c.sink != nil {
		c.sink.ResetPanels()
	}
}

// Forward hands every frame published since the previous call to sink.
// It reports whether anything was forwarded.
func (c *Controller) Forward(sink Sink) bool {
	c.fwdMu.Lock()
	defer c.fwdMu.Unlock()

	buffers := c.worker.Buffers()
	forwarded := false
	for _, ch := range capture.Channels {
		img, seq, ok := buffers.Get(ch).ReadIfNew(c.lastSeq[ch])
		if !ok {
			continue
		}
		c.lastSeq[ch] = seq
		forwarded = true
		switch ch {
		case capture.RGB:
			sink.SetRGBImage(img)
		case capture.Depth:
			sink.SetDepthImage(img)
		case capture.IR:
			sink.SetIRImage(img)
		}
	}
	return forwarded
}
