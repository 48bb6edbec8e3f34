package device

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pion/logging"
)

// FrameWriter receives JPEG-encoded color frames for one recording.
type FrameWriter interface {
	WriteFrame(jpegData []byte) error
	Close() error
}

// RecorderFactory creates the writer for a recording at path.
type RecorderFactory func(path string, fps int) (FrameWriter, error)

// recorderCloseTimeout bounds how long Close waits for ffmpeg to finish
// writing the container trailer.
const recorderCloseTimeout = 5 * time.Second

// Recorder muxes an MJPEG frame stream into a Matroska file by piping it
// into an ffmpeg process.
type Recorder struct {
	path   string
	log    logging.LeveledLogger
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool
	frames uint64
}

// FFmpegRecorders returns a RecorderFactory backed by NewRecorder.
func FFmpegRecorders(log logging.LeveledLogger) RecorderFactory {
	return func(path string, fps int) (FrameWriter, error) {
		return NewRecorder(path, fps, log)
	}
}

// CheckRecordTarget verifies that the directory of path exists. It is
// never created here.
func CheckRecordTarget(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrRecordTarget)
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRecordTarget, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRecordTarget, dir)
	}
	return nil
}

// NewRecorder starts ffmpeg writing a Matroska container at path.
func NewRecorder(path string, fps int, log logging.LeveledLogger) (*Recorder, error) {
	if err := CheckRecordTarget(path); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("recorder: ffmpeg not found in PATH: %w", err)
	}
	if fps <= 0 {
		fps = 30
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "mjpeg", "-framerate", strconv.Itoa(fps), "-i", "-",
		"-c:v", "copy", "-f", "matroska", path,
	}
	cmd := exec.Command("ffmpeg", args...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("recorder: start ffmpeg: %w", err)
	}
	log.Infof("recording to %s (ffmpeg pid %d, %d fps)", path, cmd.Process.Pid, fps)

	return &Recorder{
		path:  path,
		log:   log,
		cmd:   cmd,
		stdin: stdin,
	}, nil
}

// Path returns the output file.
func (r *Recorder) Path() string { return r.path }

// WriteFrame appends one JPEG frame.
func (r *Recorder) WriteFrame(jpegData []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrSessionClosed
	}
	if _, err := r.stdin.Write(jpegData); err != nil {
		return fmt.Errorf("recorder: write frame: %w", err)
	}
	r.frames++
	return nil
}

// Close flushes the stream and waits for ffmpeg to finalize the file.
// ffmpeg is killed if it does not exit within recorderCloseTimeout.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	frames := r.frames
	r.mu.Unlock()

	r.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- r.cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("recorder: ffmpeg exited: %w", err)
		}
	case <-time.After(recorderCloseTimeout):
		r.cmd.Process.Kill()
		<-done
		return errors.New("recorder: ffmpeg did not finish in time, killed")
	}
	r.log.Infof("recording finished: %s (%d frames)", r.path, frames)
	return nil
}

// encodeColor returns the JPEG payload written for a capture: the raw
// MJPEG bytes when present, otherwise the decoded color image re-encoded.
func encodeColor(c *Capture) ([]byte, error) {
	if len(c.ColorRaw) > 0 {
		return c.ColorRaw, nil
	}
	if c.Color == nil {
		return nil, errors.New("recorder: capture has no color image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.Color, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("recorder: encode color: %w", err)
	}
	return buf.Bytes(), nil
}
