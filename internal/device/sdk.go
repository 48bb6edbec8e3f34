// Package device is the boundary to the depth camera: configuration,
// sessions, the pre-flight probe and the recording writer.
package device

import (
	"context"
	"image"
	"time"
)

// Capture is one set of frames pulled from an open session. Channels the
// sensor did not deliver this round are nil.
type Capture struct {
	Color image.Image // 4-channel RGBA
	Depth image.Image // *image.Gray16, millimetres
	IR    image.Image // *image.Gray or *image.Gray16

	// ColorRaw holds the undecoded color payload when the sensor delivers
	// MJPEG; the recorder writes it through untouched.
	ColorRaw  []byte
	Timestamp time.Time
}

// RecordOptions selects whether a session writes its color stream to disk.
type RecordOptions struct {
	Enabled bool
	Path    string
}

// Session is an open handle to the sensor.
type Session interface {
	// ID is the opaque handle identifier.
	ID() string
	// RecordPath returns the recording target, or "" when not recording.
	RecordPath() string
	// Capture blocks until the next capture is available. After Close it
	// returns ErrSessionClosed.
	Capture(ctx context.Context) (*Capture, error)
	// SetColorControl applies a named color control (e.g. "brightness").
	SetColorControl(name string, value int32) error
	Close() error
}

// SDK opens sessions against a camera backend.
type SDK interface {
	Name() string
	InitializeLibraries() error
	StartDevice(ctx context.Context, cfg *Configuration, rec RecordOptions) (Session, error)
}
