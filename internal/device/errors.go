package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Errors
var (
	ErrDeviceNotFound          = errors.New("device: not found")
	ErrPermissionDenied        = errors.New("device: permission denied")
	ErrAlreadyInUse            = errors.New("device: already in use")
	ErrConfigurationInvalid    = errors.New("device: configuration invalid")
	ErrLibrariesNotInitialized = errors.New("device: libraries not initialized")
	ErrSessionClosed           = errors.New("device: session closed")
	ErrRecordTarget            = errors.New("device: recording target unavailable")
	ErrRecorderUnavailable     = errors.New("device: no recorder available")
	ErrDeviceTimeout           = errors.New("device: camera did not respond in time")
)

// UnavailableError reports that the camera could not be reached during the
// pre-flight probe. Err carries the classified cause.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("device unavailable (%s): %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Classify tags an error from the driver layer with one of the sentinel
// errors above so callers can tell a missing camera from a busy one.
// Errors that already carry a sentinel, and nil, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrDeviceNotFound, ErrPermissionDenied, ErrAlreadyInUse, ErrConfigurationInvalid, ErrDeviceTimeout} {
		if errors.Is(err, known) {
			return err
		}
	}

	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrDeviceTimeout, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %w", ErrAlreadyInUse, err)
	case errors.Is(err, syscall.EINVAL):
		return fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
	}
	return err
}

// Reason returns a short human readable cause for dialogs and CLI output.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeviceNotFound):
		return "camera not found"
	case errors.Is(err, ErrPermissionDenied):
		return "permission denied"
	case errors.Is(err, ErrAlreadyInUse):
		return "camera is in use by another process"
	case errors.Is(err, ErrConfigurationInvalid):
		return "camera configuration is invalid"
	case errors.Is(err, ErrRecordTarget):
		return "recording directory is not available"
	case errors.Is(err, ErrRecorderUnavailable):
		return "recording is not available"
	case errors.Is(err, ErrDeviceTimeout):
		return "camera did not respond in time"
	default:
		return "unknown camera error"
	}
}
