package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	content := `[logging]
file = ` + filepath.Join(dir, "test.log") + `
stdout = false

[device]
backend = ` + backend + `
color_device = /dev/no-such-video

[sidebar]
camera_fps = 30
color_resolution = 32x24
depth_mode = nfov_2x2binned

[recording]
video_dir = ` + dir + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	var root *cobra.Command
	switch args[0] {
	case "probe":
		root = probeCommand()
	case "selftest":
		root = selfTestCommand()
	case "version":
		root = versionCommand()
	}
	root.SetOut(&out)
	root.SetArgs(args[1:])
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Depth Recorder dev")
}

func TestProbeSynthetic(t *testing.T) {
	configPath = writeConfig(t, "synthetic")
	out, err := run(t, "probe")
	require.NoError(t, err)
	assert.Contains(t, out, "Camera OK (synthetic)")
}

func TestProbeMissingCameraExitsZero(t *testing.T) {
	configPath = writeConfig(t, "v4l2")
	out, err := run(t, "probe")
	require.NoError(t, err)
	assert.Contains(t, out, "Camera connection problem")
	assert.Contains(t, out, "camera not found")
}

func TestSelfTestSynthetic(t *testing.T) {
	configPath = writeConfig(t, "synthetic")
	out, err := run(t, "selftest", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "frames checked: 3")
	assert.Contains(t, out, "self test passed")
}
