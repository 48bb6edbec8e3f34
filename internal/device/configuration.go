package device

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Configuration keys understood by the device backends.
const (
	KeyCameraFPS              = "camera_fps"
	KeyColorFormat            = "color_format"
	KeyColorResolution        = "color_resolution"
	KeyDepthMode              = "depth_mode"
	KeySynchronizedImagesOnly = "synchronized_images_only"

	// ColorControlPrefix marks keys that are applied as color controls
	// once the device is open, e.g. "color_control.brightness".
	ColorControlPrefix = "color_control."
)

var configDefaults = map[string]string{
	KeyCameraFPS:              "30",
	KeyColorFormat:            "mjpeg",
	KeyColorResolution:        "720p",
	KeyDepthMode:              "nfov_unbinned",
	KeySynchronizedImagesOnly: "false",
}

var namedResolutions = map[string][2]int{
	"480p":  {640, 480},
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
	"1440p": {2560, 1440},
	"1536p": {2048, 1536},
	"2160p": {3840, 2160},
	"3072p": {4096, 3072},
}

// DepthMode describes the depth/IR sensor mode.
type DepthMode struct {
	Name   string
	Width  int
	Height int
	Depth  bool // produces depth frames
	IR     bool // produces IR frames
}

var depthModes = map[string]DepthMode{
	"off":            {Name: "off"},
	"nfov_2x2binned": {Name: "nfov_2x2binned", Width: 320, Height: 288, Depth: true, IR: true},
	"nfov_unbinned":  {Name: "nfov_unbinned", Width: 640, Height: 576, Depth: true, IR: true},
	"wfov_2x2binned": {Name: "wfov_2x2binned", Width: 512, Height: 512, Depth: true, IR: true},
	"wfov_unbinned":  {Name: "wfov_unbinned", Width: 1024, Height: 1024, Depth: true, IR: true},
	"passive_ir":     {Name: "passive_ir", Width: 1024, Height: 1024, IR: true},
}

// Choices returns the accepted values of a known key for option pickers,
// or nil for free-form keys.
func Choices(key string) []string {
	switch key {
	case KeyCameraFPS:
		return []string{"5", "15", "30"}
	case KeyColorFormat:
		return []string{"mjpeg", "yuyv"}
	case KeyColorResolution:
		return []string{"480p", "720p", "1080p", "1440p", "1536p", "2160p", "3072p"}
	case KeyDepthMode:
		return []string{"off", "nfov_2x2binned", "nfov_unbinned", "wfov_2x2binned", "wfov_unbinned", "passive_ir"}
	case KeySynchronizedImagesOnly:
		return []string{"false", "true"}
	}
	return nil
}

// Configuration is the property bag of requested sensor modes. Values are
// stored as given; they are parsed only when a session is opened.
type Configuration struct {
	values map[string]string
	set    map[string]bool
}

// NewConfiguration returns a configuration holding only the defaults.
func NewConfiguration() *Configuration {
	c := &Configuration{
		values: make(map[string]string, len(configDefaults)),
		set:    make(map[string]bool),
	}
	for k, v := range configDefaults {
		c.values[k] = v
	}
	return c
}

// BuildConfiguration copies every selected option onto a fresh
// configuration. Keys that are not selected keep their defaults.
func BuildConfiguration(selected map[string]string) *Configuration {
	c := NewConfiguration()
	for k, v := range selected {
		c.Set(k, v)
	}
	return c
}

// Set stores value under key.
func (c *Configuration) Set(key, value string) {
	c.values[key] = value
	c.set[key] = true
}

// Get returns the stored value, or "" when the key is unknown.
func (c *Configuration) Get(key string) string {
	return c.values[key]
}

// IsSet reports whether key was supplied explicitly.
func (c *Configuration) IsSet(key string) bool {
	return c.set[key]
}

// Keys returns all keys with a value, sorted.
func (c *Configuration) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, fmt.Sprintf(format, args...))
}

// FPS returns the requested camera frame rate.
func (c *Configuration) FPS() (int, error) {
	v := strings.TrimSpace(c.values[KeyCameraFPS])
	fps, err := strconv.Atoi(v)
	if err != nil || fps < 1 || fps > 120 {
		return 0, invalid("camera_fps %q", v)
	}
	return fps, nil
}

// ColorFormat returns the requested color pixel format ("mjpeg" or "yuyv").
func (c *Configuration) ColorFormat() (string, error) {
	v := strings.ToLower(strings.TrimSpace(c.values[KeyColorFormat]))
	switch v {
	case "mjpeg", "mjpg":
		return "mjpeg", nil
	case "yuyv", "yuy2":
		return "yuyv", nil
	}
	return "", invalid("color_format %q", v)
}

// Resolution returns the requested color resolution. Accepts the named
// presets (e.g. "720p") or an explicit "WIDTHxHEIGHT".
func (c *Configuration) Resolution() (width, height int, err error) {
	v := strings.ToLower(strings.TrimSpace(c.values[KeyColorResolution]))
	if wh, ok := namedResolutions[v]; ok {
		return wh[0], wh[1], nil
	}
	if _, err := fmt.Sscanf(v, "%dx%d", &width, &height); err == nil && width > 0 && height > 0 {
		return width, height, nil
	}
	return 0, 0, invalid("color_resolution %q", v)
}

// DepthMode returns the requested depth sensor mode.
func (c *Configuration) DepthMode() (DepthMode, error) {
	v := strings.ToLower(strings.TrimSpace(c.values[KeyDepthMode]))
	if dm, ok := depthModes[v]; ok {
		return dm, nil
	}
	return DepthMode{}, invalid("depth_mode %q", v)
}

// SynchronizedImagesOnly reports whether captures missing a channel
// should be dropped.
func (c *Configuration) SynchronizedImagesOnly() (bool, error) {
	v := strings.TrimSpace(c.values[KeySynchronizedImagesOnly])
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalid("synchronized_images_only %q", v)
	}
	return b, nil
}

// ColorControls returns the color-control keys with their prefix stripped.
func (c *Configuration) ColorControls() (map[string]int32, error) {
	out := make(map[string]int32)
	for k, v := range c.values {
		if !strings.HasPrefix(k, ColorControlPrefix) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return nil, invalid("%s %q", k, v)
		}
		out[strings.TrimPrefix(k, ColorControlPrefix)] = int32(n)
	}
	return out, nil
}

// Validate parses every known key and returns the first failure.
func (c *Configuration) Validate() error {
	if _, err := c.FPS(); err != nil {
		return err
	}
	if _, err := c.ColorFormat(); err != nil {
		return err
	}
	if _, _, err := c.Resolution(); err != nil {
		return err
	}
	if _, err := c.DepthMode(); err != nil {
		return err
	}
	if _, err := c.SynchronizedImagesOnly(); err != nil {
		return err
	}
	_, err := c.ColorControls()
	return err
}

// String renders the configuration for logs.
func (c *Configuration) String() string {
	var b strings.Builder
	for i, k := range c.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", k, c.values[k])
	}
	return b.String()
}
