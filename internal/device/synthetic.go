package device

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// Synthetic is a camera backend that generates moving test patterns for
// all three channels. It is used when no hardware is attached and in tests.
// Only one session may be open at a time, like a real device.
type Synthetic struct {
	log         logging.LeveledLogger
	recorders   RecorderFactory
	initialized atomic.Bool
	inUse       atomic.Bool

	// OpenErr, when set, makes StartDevice fail with it.
	OpenErr error
}

// NewSynthetic creates a synthetic backend. recorders may be nil when
// recording is not needed.
func NewSynthetic(log logging.LeveledLogger, recorders RecorderFactory) *Synthetic {
	return &Synthetic{log: log, recorders: recorders}
}

func (s *Synthetic) Name() string { return "synthetic" }

// InitializeLibraries marks the backend ready.
func (s *Synthetic) InitializeLibraries() error {
	s.initialized.Store(true)
	return nil
}

// StartDevice opens a generated session with cfg.
func (s *Synthetic) StartDevice(ctx context.Context, cfg *Configuration, rec RecordOptions) (Session, error) {
	if !s.initialized.Load() {
		return nil, ErrLibrariesNotInitialized
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if !s.inUse.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInUse
	}

	fps, _ := cfg.FPS()
	w, h, _ := cfg.Resolution()
	dm, _ := cfg.DepthMode()
	controls, _ := cfg.ColorControls()

	sess := &syntheticSession{
		sdk:      s,
		id:       uuid.NewString(),
		interval: time.Second / time.Duration(fps),
		width:    w,
		height:   h,
		dm:       dm,
		controls: make(map[string]int32),
		closeCh:  make(chan struct{}),
	}

	if rec.Enabled {
		if err := CheckRecordTarget(rec.Path); err != nil {
			s.inUse.Store(false)
			return nil, err
		}
		if s.recorders == nil {
			s.inUse.Store(false)
			return nil, ErrRecorderUnavailable
		}
		fw, err := s.recorders(rec.Path, fps)
		if err != nil {
			s.inUse.Store(false)
			return nil, err
		}
		sess.recordPath = rec.Path
		sess.recorder = fw
	}

	for name, v := range controls {
		if err := sess.SetColorControl(name, v); err != nil {
			sess.Close()
			return nil, err
		}
	}

	s.log.Debugf("synthetic session %s opened: %dx%d @ %d fps, depth %s", sess.id, w, h, fps, dm.Name)
	return sess, nil
}

type syntheticSession struct {
	sdk        *Synthetic
	id         string
	interval   time.Duration
	width      int
	height     int
	dm         DepthMode
	recordPath string
	recorder   FrameWriter

	mu       sync.Mutex
	controls map[string]int32
	frameNum int
	next     time.Time

	closed    atomic.Bool
	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (s *syntheticSession) ID() string         { return s.id }
func (s *syntheticSession) RecordPath() string { return s.recordPath }

func (s *syntheticSession) SetColorControl(name string, value int32) error {
	if _, ok := colorControlIDs[name]; !ok {
		return fmt.Errorf("%w: unknown color control %q", ErrConfigurationInvalid, name)
	}
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.mu.Lock()
	s.controls[name] = value
	s.mu.Unlock()
	return nil
}

// Capture waits for the next frame slot and generates one capture.
func (s *syntheticSession) Capture(ctx context.Context) (*Capture, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	s.mu.Lock()
	wait := time.Until(s.next)
	s.mu.Unlock()
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closeCh:
			return nil, ErrSessionClosed
		case <-timer.C:
		}
	}

	s.mu.Lock()
	now := time.Now()
	s.next = now.Add(s.interval)
	n := s.frameNum
	s.frameNum++
	brightness := s.controls["brightness"]
	s.mu.Unlock()

	c := &Capture{
		Color:     s.colorFrame(n, brightness),
		Timestamp: now,
	}
	if s.dm.Depth {
		c.Depth = s.depthFrame(n)
	}
	if s.dm.IR {
		c.IR = s.irFrame(n)
	}

	if s.recorder != nil {
		data, err := encodeColor(c)
		if err == nil {
			err = s.recorder.WriteFrame(data)
		}
		if err != nil {
			s.sdk.log.Warnf("synthetic session %s: record frame %d: %v", s.id, n, err)
		}
	}
	return c, nil
}

func (s *syntheticSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		if s.recorder != nil {
			s.closeErr = s.recorder.Close()
		}
		s.sdk.inUse.Store(false)
		s.mu.Lock()
		frames := s.frameNum
		s.mu.Unlock()
		s.sdk.log.Debugf("synthetic session %s closed after %d frames", s.id, frames)
	})
	return s.closeErr
}

// colorFrame draws a sky gradient with drifting cloud blocks and a moving
// red marker. brightness shifts every channel.
func (s *syntheticSession) colorFrame(n int, brightness int32) *image.RGBA {
	w, h := s.width, s.height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	marker := (n * 4) % max(w, 1)

	for y := 0; y < h; y++ {
		gradient := float64(y) / float64(h)
		base := [3]int{int(135 * (1 - gradient)), int(206 * (1 - gradient)), int(250 * (1 - gradient))}
		off := y * img.Stride
		for x := 0; x < w; x++ {
			r, g, b := base[0], base[1], base[2]
			if (x+n*2)%80 < 20 && y%60 < 15 {
				r, g, b = 220, 220, 220
			}
			if x >= marker && x < marker+10 && y > h/2 && y < h/2+10 {
				r, g, b = 255, 60, 60
			}
			img.Pix[off+0] = clamp8(r + int(brightness))
			img.Pix[off+1] = clamp8(g + int(brightness))
			img.Pix[off+2] = clamp8(b + int(brightness))
			img.Pix[off+3] = 255
			off += 4
		}
	}
	return img
}

// depthFrame renders a tilted floor (1-4 m) with a disc at 0.8 m sweeping
// across it. Values are millimetres.
func (s *syntheticSession) depthFrame(n int) *image.Gray16 {
	w, h := s.dm.Width, s.dm.Height
	img := image.NewGray16(image.Rect(0, 0, w, h))
	cx := (n * 6) % max(w, 1)
	cy := h / 2
	r := h / 6

	for y := 0; y < h; y++ {
		floor := 4000 - 3000*y/max(h, 1)
		off := y * img.Stride
		for x := 0; x < w; x++ {
			d := floor
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				d = 800
			}
			img.Pix[off] = uint8(d >> 8)
			img.Pix[off+1] = uint8(d)
			off += 2
		}
	}
	return img
}

// irFrame renders a vertical intensity ramp with a bright moving band.
func (s *syntheticSession) irFrame(n int) *image.Gray {
	w, h := s.dm.Width, s.dm.Height
	img := image.NewGray(image.Rect(0, 0, w, h))
	band := (n * 3) % max(h, 1)

	for y := 0; y < h; y++ {
		v := 40 + 120*y/max(h, 1)
		if y >= band && y < band+8 {
			v = 240
		}
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := range row {
			row[x] = uint8(v)
		}
	}
	return img
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
