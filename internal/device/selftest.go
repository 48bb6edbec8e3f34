package device

import (
	"context"
	"fmt"
	"image"

	"github.com/pion/logging"
)

// DefaultSelfTestFrames is the number of captures checked by SelfTest.
const DefaultSelfTestFrames = 10

// SelfTestReport summarizes a SelfTest run.
type SelfTestReport struct {
	Frames       int
	BadColor     int
	MissingDepth int
	Errors       []error
}

// Passed reports whether every checked frame was valid.
func (r SelfTestReport) Passed() bool {
	return r.Frames > 0 && r.BadColor == 0 && r.MissingDepth == 0 && len(r.Errors) == 0
}

// SelfTest opens a session and checks frames captures: color frames must
// be 4-channel and depth frames must contain at least one non-zero sample
// (unless the depth mode is off). Failures are logged and counted; the loop
// never stops early on a bad frame. The returned error is non-nil only when
// the session could not be opened.
func SelfTest(ctx context.Context, sdk SDK, cfg *Configuration, frames int, log logging.LeveledLogger) (report SelfTestReport, err error) {
	if frames <= 0 {
		frames = DefaultSelfTestFrames
	}

	log.Infof("---- pre-recording self test ----")
	log.Infof("configuration: %s", cfg)
	defer log.Infof("---- self test finished ----")

	dm, err := cfg.DepthMode()
	if err != nil {
		return report, err
	}

	if err := sdk.InitializeLibraries(); err != nil {
		return report, &UnavailableError{Op: "initialize", Err: Classify(err)}
	}
	sess, err := sdk.StartDevice(ctx, cfg, RecordOptions{})
	if err != nil {
		return report, &UnavailableError{Op: "open", Err: Classify(err)}
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warnf("self test: close session: %v", cerr)
		}
	}()

	for report.Frames < frames {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ctx.Err())
			return report, nil
		}
		report.Frames++

		c, cerr := sess.Capture(ctx)
		if cerr != nil {
			log.Warnf("self test: frame %d: %v", report.Frames, cerr)
			report.Errors = append(report.Errors, fmt.Errorf("frame %d: %w", report.Frames, cerr))
			continue
		}
		if !isFourChannel(c.Color) {
			log.Warnf("self test: frame %d: color image does not have 4 channels", report.Frames)
			report.BadColor++
		}
		if dm.Depth && !hasNonZero(c.Depth) {
			log.Warnf("self test: frame %d: depth image is empty", report.Frames)
			report.MissingDepth++
		}
	}
	return report, nil
}

func isFourChannel(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return !img.Bounds().Empty()
	}
	return false
}

func hasNonZero(img image.Image) bool {
	switch m := img.(type) {
	case *image.Gray16:
		for _, b := range m.Pix {
			if b != 0 {
				return true
			}
		}
	case *image.Gray:
		for _, b := range m.Pix {
			if b != 0 {
				return true
			}
		}
	case nil:
	default:
		b := m.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if r, _, _, _ := m.At(x, y).RGBA(); r != 0 {
					return true
				}
			}
		}
	}
	return false
}
