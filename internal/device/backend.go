package device

import (
	"fmt"

	"depth-recorder-go/internal/config"

	"github.com/pion/logging"
)

// New returns the backend selected by cfg.DeviceBackend. Recordings are
// written with ffmpeg.
func New(cfg *config.Config, factory logging.LoggerFactory) (SDK, error) {
	log := factory.NewLogger("device")
	recorders := FFmpegRecorders(factory.NewLogger("recorder"))

	switch cfg.DeviceBackend {
	case "synthetic":
		return NewSynthetic(log, recorders), nil
	case "v4l2", "":
		return NewV4L2(V4L2Options{
			ColorDevice:       cfg.ColorDevice,
			DepthDevice:       cfg.DepthDevice,
			IRDevice:          cfg.IRDevice,
			KillDeviceHolders: cfg.KillDeviceHolders,
		}, log, recorders), nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrConfigurationInvalid, cfg.DeviceBackend)
}
