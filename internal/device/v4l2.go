package device

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"depth-recorder-go/internal/helpers"

	"github.com/blackjack/webcam"
	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/frame"
	"golang.org/x/image/draw"
)

func fourcc(a, b, c, d byte) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// V4L2 pixel formats used by depth cameras that expose their sensors as
// separate UVC nodes.
var (
	pixFmtMJPEG = fourcc('M', 'J', 'P', 'G')
	pixFmtYUYV  = fourcc('Y', 'U', 'Y', 'V')
	pixFmtZ16   = fourcc('Z', '1', '6', ' ')
	pixFmtGrey  = fourcc('G', 'R', 'E', 'Y')
)

// colorWaitSeconds bounds a single wait on the color node so that Close
// and context cancellation are noticed promptly.
const colorWaitSeconds = 1

// V4L2Options names the device nodes of the camera.
type V4L2Options struct {
	ColorDevice       string
	DepthDevice       string // optional, Z16
	IRDevice          string // optional, 8-bit grey
	KillDeviceHolders bool
}

// V4L2 is a camera backend over Video4Linux2 device nodes.
type V4L2 struct {
	opts        V4L2Options
	log         logging.LeveledLogger
	recorders   RecorderFactory
	initialized atomic.Bool
	inUse       atomic.Bool
}

// NewV4L2 creates a V4L2 backend.
func NewV4L2(opts V4L2Options, log logging.LeveledLogger, recorders RecorderFactory) *V4L2 {
	return &V4L2{opts: opts, log: log, recorders: recorders}
}

func (v *V4L2) Name() string { return "v4l2" }

// InitializeLibraries checks that every configured node exists.
func (v *V4L2) InitializeLibraries() error {
	for _, p := range []string{v.opts.ColorDevice, v.opts.DepthDevice, v.opts.IRDevice} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return Classify(err)
		}
	}
	if v.opts.ColorDevice == "" {
		return fmt.Errorf("%w: no color device configured", ErrDeviceNotFound)
	}
	v.initialized.Store(true)
	return nil
}

// StartDevice opens and starts every configured node.
func (v *V4L2) StartDevice(ctx context.Context, cfg *Configuration, rec RecordOptions) (Session, error) {
	if !v.initialized.Load() {
		return nil, ErrLibrariesNotInitialized
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !v.inUse.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInUse
	}

	sess, err := v.open(ctx, cfg, rec)
	if err != nil {
		v.inUse.Store(false)
		return nil, err
	}
	return sess, nil
}

func (v *V4L2) open(ctx context.Context, cfg *Configuration, rec RecordOptions) (*v4l2Session, error) {
	fps, _ := cfg.FPS()
	w, h, _ := cfg.Resolution()
	dm, _ := cfg.DepthMode()
	format, _ := cfg.ColorFormat()
	syncOnly, _ := cfg.SynchronizedImagesOnly()
	controls, _ := cfg.ColorControls()

	if rec.Enabled {
		if err := CheckRecordTarget(rec.Path); err != nil {
			return nil, err
		}
	}

	sess := &v4l2Session{
		sdk:      v,
		id:       uuid.NewString(),
		syncOnly: syncOnly,
	}

	colorFmt := pixFmtMJPEG
	var decFmt frame.Format = frame.FormatMJPEG
	if format == "yuyv" {
		colorFmt, decFmt = pixFmtYUYV, frame.FormatYUYV
	}
	color, err := openNode(v.opts.ColorDevice, colorFmt, w, h, fps, v.opts.KillDeviceHolders, v.log)
	if err != nil {
		return nil, err
	}
	sess.color = color
	sess.colorMJPEG = colorFmt == pixFmtMJPEG
	if sess.colorDec, err = frame.NewDecoder(decFmt); err != nil {
		sess.closeNodes()
		return nil, fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
	}

	if dm.Depth && v.opts.DepthDevice != "" {
		if err := ctx.Err(); err != nil {
			sess.closeNodes()
			return nil, err
		}
		if sess.depth, err = openNode(v.opts.DepthDevice, pixFmtZ16, dm.Width, dm.Height, fps, v.opts.KillDeviceHolders, v.log); err != nil {
			sess.closeNodes()
			return nil, err
		}
		if sess.depthDec, err = frame.NewDecoder(frame.FormatZ16); err != nil {
			sess.closeNodes()
			return nil, fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
		}
	}
	if dm.IR && v.opts.IRDevice != "" {
		if err := ctx.Err(); err != nil {
			sess.closeNodes()
			return nil, err
		}
		if sess.ir, err = openNode(v.opts.IRDevice, pixFmtGrey, dm.Width, dm.Height, fps, v.opts.KillDeviceHolders, v.log); err != nil {
			sess.closeNodes()
			return nil, err
		}
	}

	for name, value := range controls {
		if err := sess.SetColorControl(name, value); err != nil {
			sess.closeNodes()
			return nil, err
		}
	}

	if rec.Enabled {
		if v.recorders == nil {
			sess.closeNodes()
			return nil, ErrRecorderUnavailable
		}
		fw, err := v.recorders(rec.Path, fps)
		if err != nil {
			sess.closeNodes()
			return nil, err
		}
		sess.recorder = fw
		sess.recordPath = rec.Path
	}

	v.log.Infof("v4l2 session %s opened: color %s %dx%d @ %d fps, depth %s",
		sess.id, v.opts.ColorDevice, color.width, color.height, fps, dm.Name)
	return sess, nil
}

// v4l2Node is one streaming device node.
type v4l2Node struct {
	path   string
	cam    *webcam.Webcam
	width  int
	height int
}

func openNode(path string, pf webcam.PixelFormat, w, h, fps int, killHolders bool, log logging.LeveledLogger) (*v4l2Node, error) {
	if killHolders {
		helpers.KillDeviceHolders(path, log)
	}

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, Classify(fmt.Errorf("open %s: %w", path, err))
	}

	if _, ok := cam.GetSupportedFormats()[pf]; !ok {
		cam.Close()
		return nil, fmt.Errorf("%w: %s does not support pixel format %#x", ErrConfigurationInvalid, path, uint32(pf))
	}

	got, gw, gh, err := cam.SetImageFormat(pf, uint32(w), uint32(h))
	if err != nil {
		cam.Close()
		return nil, Classify(fmt.Errorf("set format on %s: %w", path, err))
	}
	if got != pf {
		cam.Close()
		return nil, fmt.Errorf("%w: %s refused pixel format %#x", ErrConfigurationInvalid, path, uint32(pf))
	}
	if int(gw) != w || int(gh) != h {
		log.Warnf("%s: requested %dx%d, driver chose %dx%d", path, w, h, gw, gh)
	}

	if err := cam.SetFramerate(float32(fps)); err != nil {
		log.Warnf("%s: set framerate %d: %v", path, fps, err)
	}
	if err := cam.SetBufferCount(4); err != nil {
		log.Warnf("%s: set buffer count: %v", path, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, Classify(fmt.Errorf("start streaming %s: %w", path, err))
	}

	return &v4l2Node{path: path, cam: cam, width: int(gw), height: int(gh)}, nil
}

// read waits up to timeout seconds for a frame. A timeout returns nil, nil.
func (n *v4l2Node) read(timeout uint32) ([]byte, error) {
	err := n.cam.WaitForFrame(timeout)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return nil, nil
	default:
		return nil, err
	}
	b, err := n.cam.ReadFrame()
	if err != nil || len(b) == 0 {
		return nil, err
	}
	// ReadFrame has already requeued the mmap buffer.
	return ownedCopy(b), nil
}

// ownedCopy moves a driver buffer into Go memory.
func ownedCopy(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (n *v4l2Node) close() error {
	n.cam.StopStreaming()
	return n.cam.Close()
}

type v4l2Session struct {
	sdk        *V4L2
	id         string
	syncOnly   bool
	recordPath string
	recorder   FrameWriter

	mu         sync.Mutex // serializes driver calls
	color      *v4l2Node
	colorMJPEG bool
	colorDec   frame.Decoder
	depthDec   frame.Decoder
	depth      *v4l2Node
	ir         *v4l2Node

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (s *v4l2Session) ID() string         { return s.id }
func (s *v4l2Session) RecordPath() string { return s.recordPath }

func (s *v4l2Session) SetColorControl(name string, value int32) error {
	id, ok := colorControlIDs[name]
	if !ok {
		return fmt.Errorf("%w: unknown color control %q", ErrConfigurationInvalid, name)
	}
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.color.cam.SetControl(id, value); err != nil {
		return Classify(fmt.Errorf("set %s=%d: %w", name, value, err))
	}
	return nil
}

// Capture blocks until a color frame arrives, then collects whatever depth
// and IR frames are ready without waiting for them.
func (s *v4l2Session) Capture(ctx context.Context) (*Capture, error) {
	for {
		if s.closed.Load() {
			return nil, ErrSessionClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := s.captureOnce()
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		if s.syncOnly && ((s.depth != nil && c.Depth == nil) || (s.ir != nil && c.IR == nil)) {
			continue
		}

		if s.recorder != nil {
			data, err := encodeColor(c)
			if err == nil {
				err = s.recorder.WriteFrame(data)
			}
			if err != nil {
				s.sdk.log.Warnf("v4l2 session %s: record frame: %v", s.id, err)
			}
		}
		return c, nil
	}
}

func (s *v4l2Session) captureOnce() (*Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	raw, err := s.color.read(colorWaitSeconds)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.color.path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	c := &Capture{Timestamp: time.Now()}
	img, release, err := s.colorDec.Decode(raw, s.color.width, s.color.height)
	if err != nil {
		return nil, fmt.Errorf("decode color: %w", err)
	}
	c.Color = toRGBA(img)
	release()
	if s.colorMJPEG {
		c.ColorRaw = raw
	}

	if s.depth != nil {
		if raw, err := s.depth.read(0); err == nil && len(raw) > 0 {
			if img, release, err := s.depthDec.Decode(raw, s.depth.width, s.depth.height); err == nil {
				if g, ok := img.(*image.Gray16); ok {
					c.Depth = g
				}
				release()
			}
		}
	}
	if s.ir != nil {
		if raw, err := s.ir.read(0); err == nil && len(raw) >= s.ir.width*s.ir.height {
			c.IR = grayFrame(raw, s.ir.width, s.ir.height)
		}
	}
	return c, nil
}

// grayFrame copies the first w*h bytes of an 8-bit grey frame into a new
// image.
func grayFrame(raw []byte, w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, raw[:w*h])
	return img
}

// toRGBA converts a decoded frame to the 4-channel layout sessions hand out.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func (s *v4l2Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.mu.Lock()
		s.closeErr = s.closeNodes()
		s.mu.Unlock()
		if s.recorder != nil {
			if err := s.recorder.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		s.sdk.inUse.Store(false)
		s.sdk.log.Infof("v4l2 session %s closed", s.id)
	})
	return s.closeErr
}

func (s *v4l2Session) closeNodes() error {
	var first error
	for _, n := range []*v4l2Node{s.color, s.depth, s.ir} {
		if n == nil {
			continue
		}
		if err := n.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
