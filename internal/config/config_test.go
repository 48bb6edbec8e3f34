package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.DeviceBackend, cfg.DeviceBackend)
	assert.Equal(t, def.StopTimeoutMS, cfg.StopTimeoutMS)
	assert.Equal(t, def.Sidebar, cfg.Sidebar)
}

func TestLoadAppliesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	ini := `
# comment
[logging]
level = debug
stdout = off
scopes = capture=trace, ui:warn

[device]
backend = synthetic
depth_device = /dev/video2
probe_timeout_ms = 10

[sidebar]
camera_fps = 15
color_control.brightness = 140

[recording]
video_dir = ` + dir + `
debug = yes

[performance]
stop_timeout_ms = 99999

[profile]
ui_fps = 200
`
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.False(t, cfg.LogToStdout)
	assert.Equal(t, map[string]string{"capture": "TRACE", "ui": "WARN"}, cfg.LogScopes)
	assert.Equal(t, "synthetic", cfg.DeviceBackend)
	assert.Equal(t, "/dev/video2", cfg.DepthDevice)
	assert.Equal(t, 100, cfg.ProbeTimeoutMS, "clamped to minimum")
	assert.Equal(t, "15", cfg.Sidebar["camera_fps"])
	assert.Equal(t, "140", cfg.Sidebar["color_control.brightness"])
	assert.Equal(t, "mjpeg", cfg.Sidebar["color_format"], "defaults kept for unspecified sidebar keys")
	assert.Equal(t, dir, cfg.VideoDir)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 30000, cfg.StopTimeoutMS)
	assert.Equal(t, 60, cfg.UIFPS)
}

func TestLoadIgnoresUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("[device]\nbackend = kinect\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "v4l2", cfg.DeviceBackend)
}

func TestEnvOverridesLogFile(t *testing.T) {
	t.Setenv("DEPTH_RECORDER_LOG_FILE", "/tmp/other.log")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.log", cfg.LogFile)
}

func TestAsHelpers(t *testing.T) {
	assert.True(t, asBool("On", false))
	assert.False(t, asBool("0", true))
	assert.True(t, asBool("maybe", true))

	assert.Equal(t, 5, asInt("x", 5, nil, nil))
	assert.Equal(t, 10, asInt("3", 5, intPtr(10), nil))
	assert.Equal(t, 20, asInt("30", 5, nil, intPtr(20)))

	assert.InDelta(t, 1.5, asFloat("1.5", 0, nil, nil), 1e-9)
	assert.InDelta(t, 2.0, asFloat("9", 0, nil, floatPtr(2)), 1e-9)
}

func TestSidebarSelectionIsACopy(t *testing.T) {
	cfg := DefaultConfig()
	sel := cfg.SidebarSelection()
	sel["camera_fps"] = "5"
	assert.Equal(t, "30", cfg.Sidebar["camera_fps"])
	assert.Equal(t, []string{"camera_fps", "color_format", "color_resolution", "depth_mode"}, cfg.SidebarKeys())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VideoDir = t.TempDir()
	cfg.ColorDevice = ""
	ok, warnings := cfg.Validate()
	assert.False(t, ok)
	assert.NotEmpty(t, warnings)

	cfg = DefaultConfig()
	cfg.DeviceBackend = "synthetic"
	cfg.VideoDir = t.TempDir()
	ok, warnings = cfg.Validate()
	assert.True(t, ok)
	assert.Empty(t, warnings)
}
