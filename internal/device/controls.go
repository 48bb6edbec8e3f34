package device

import "github.com/blackjack/webcam"

// V4L2 user-class and camera-class control IDs for the color controls
// the configuration can name.
const (
	cidBase       = 0x00980900
	cidCameraBase = 0x009a0900
)

var colorControlIDs = map[string]webcam.ControlID{
	"brightness":                webcam.ControlID(cidBase + 0),
	"contrast":                  webcam.ControlID(cidBase + 1),
	"saturation":                webcam.ControlID(cidBase + 2),
	"hue":                       webcam.ControlID(cidBase + 3),
	"auto_white_balance":        webcam.ControlID(cidBase + 12),
	"gain":                      webcam.ControlID(cidBase + 19),
	"power_line_frequency":      webcam.ControlID(cidBase + 24),
	"white_balance_temperature": webcam.ControlID(cidBase + 26),
	"sharpness":                 webcam.ControlID(cidBase + 27),
	"backlight_compensation":    webcam.ControlID(cidBase + 28),
	"exposure_auto":             webcam.ControlID(cidCameraBase + 1),
	"exposure_absolute":         webcam.ControlID(cidCameraBase + 2),
}

// ColorControlNames lists the color controls understood by the backends.
func ColorControlNames() []string {
	names := make([]string, 0, len(colorControlIDs))
	for n := range colorControlIDs {
		names = append(names, n)
	}
	return names
}
