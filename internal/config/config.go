// Package config manages configuration for Depth Recorder.
//
// Handles loading config from INI files, environment variables,
// and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Configuration struct
// =============================================================================

// Config holds all runtime configuration values.
type Config struct {
	// Logging
	LogLevel       string
	LogFile        string
	LogMaxBytes    int
	LogBackupCount int
	LogToStdout    bool
	LogScopes      map[string]string // scope -> level, e.g. capture=DEBUG

	// Device
	DeviceBackend     string // "v4l2" or "synthetic"
	ColorDevice       string
	DepthDevice       string
	IRDevice          string
	KillDeviceHolders bool
	ProbeTimeoutMS    int

	// Sidebar selection, copied key by key onto a fresh device configuration
	// every time the device is opened.
	Sidebar map[string]string

	// Recording
	VideoDir string
	Debug    bool

	// Performance
	DynamicFPSEnabled   bool
	PerfCheckIntervalMS int
	MinDynamicFPS       int
	StopTimeoutMS       int

	// Profile
	UIFPS        int
	PreviewWidth int

	// Health
	HealthLogIntervalSec float64
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		// Logging
		LogLevel:       "INFO",
		LogFile:        "./logs/depth_recorder.log",
		LogMaxBytes:    5 * 1024 * 1024, // 5 MB
		LogBackupCount: 3,
		LogToStdout:    true,

		// Device
		DeviceBackend:     "v4l2",
		ColorDevice:       "/dev/video0",
		DepthDevice:       "",
		IRDevice:          "",
		KillDeviceHolders: false,
		ProbeTimeoutMS:    3000,

		Sidebar: map[string]string{
			"camera_fps":       "30",
			"color_format":     "mjpeg",
			"color_resolution": "720p",
			"depth_mode":       "nfov_unbinned",
		},

		// Recording
		VideoDir: DefaultVideoDir(),
		Debug:    false,

		// Performance
		DynamicFPSEnabled:   true,
		PerfCheckIntervalMS: 2000,
		MinDynamicFPS:       5,
		StopTimeoutMS:       1000,

		// Profile
		UIFPS:        20,
		PreviewWidth: 640,

		// Health
		HealthLogIntervalSec: 30.0,
	}
}

// DefaultVideoDir returns <home>/Videos, or ./Videos when the home
// directory cannot be resolved.
func DefaultVideoDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Videos"
	}
	return filepath.Join(home, "Videos")
}

// =============================================================================
// INI parser (minimal)
// =============================================================================

// iniData stores parsed INI sections and their key-value pairs.
type iniData map[string]map[string]string

// parseINI parses INI text into sections and key-value pairs.
// Supports comments (# and ;), sections ([name]), and key = value lines.
func parseINI(text string) iniData {
	result := make(iniData)
	currentSection := ""

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := result[currentSection]; !ok {
				result[currentSection] = make(map[string]string)
			}
			continue
		}

		if idx := strings.IndexByte(line, '='); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			if currentSection != "" {
				result[currentSection][key] = value
			}
		}
	}

	return result
}

// get returns a value from the parsed INI data.
func (d iniData) get(section, key string) (string, bool) {
	if sec, ok := d[section]; ok {
		if val, ok := sec[key]; ok {
			return val, true
		}
	}
	return "", false
}

// hasSection returns true if the section exists in the INI data.
func (d iniData) hasSection(section string) bool {
	_, ok := d[section]
	return ok
}

// =============================================================================
// Type parsing helpers
// =============================================================================

// asBool parses a string as boolean. Truthy: "1","true","yes","on".
// Falsy: "0","false","no","off". Returns fallback on empty/unrecognised.
func asBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// asInt parses a string as int with optional min/max clamping.
// Pass nil for unbounded. Returns fallback on parse error.
func asInt(value string, fallback int, minVal, maxVal *int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	if minVal != nil && parsed < *minVal {
		parsed = *minVal
	}
	if maxVal != nil && parsed > *maxVal {
		parsed = *maxVal
	}
	return parsed
}

// asFloat parses a string as float64 with optional min/max clamping.
func asFloat(value string, fallback float64, minVal, maxVal *float64) float64 {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	if minVal != nil && parsed < *minVal {
		parsed = *minVal
	}
	if maxVal != nil && parsed > *maxVal {
		parsed = *maxVal
	}
	return parsed
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// =============================================================================
// Load + Apply
// =============================================================================

// ConfigPath returns the INI file path to use, respecting env vars.
func ConfigPath() string {
	if p := os.Getenv("DEPTH_RECORDER_CONFIG"); p != "" {
		return p
	}
	return "./config.ini"
}

// Load reads the INI file at the given path (or the default/env path)
// and returns a fully populated Config. Missing sections or keys
// fall back to DefaultConfig() values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	// If file doesn't exist, return defaults (not an error)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		applyEnv(cfg)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	applyINI(cfg, parseINI(string(data)))
	applyEnv(cfg)

	return cfg, nil
}

// parseScopes reads "capture=debug, device:warn" into scope -> level.
func parseScopes(v string) map[string]string {
	scopes := make(map[string]string)
	for _, item := range strings.Split(v, ",") {
		scope, level, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			scope, level, ok = strings.Cut(strings.TrimSpace(item), ":")
		}
		scope, level = strings.TrimSpace(scope), strings.TrimSpace(level)
		if ok && scope != "" && level != "" {
			scopes[scope] = strings.ToUpper(level)
		}
	}
	return scopes
}

func applyEnv(cfg *Config) {
	if logFile := os.Getenv("DEPTH_RECORDER_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
}

// applyINI maps INI key-value pairs onto the Config struct.
func applyINI(cfg *Config, ini iniData) {
	// [logging]
	if ini.hasSection("logging") {
		if v, ok := ini.get("logging", "level"); ok {
			cfg.LogLevel = strings.ToUpper(strings.TrimSpace(v))
		}
		if v, ok := ini.get("logging", "file"); ok {
			cfg.LogFile = v
		}
		if v, ok := ini.get("logging", "max_bytes"); ok {
			cfg.LogMaxBytes = asInt(v, cfg.LogMaxBytes, intPtr(1024), nil)
		}
		if v, ok := ini.get("logging", "backup_count"); ok {
			cfg.LogBackupCount = asInt(v, cfg.LogBackupCount, intPtr(1), nil)
		}
		if v, ok := ini.get("logging", "stdout"); ok {
			cfg.LogToStdout = asBool(v, cfg.LogToStdout)
		}
		if v, ok := ini.get("logging", "scopes"); ok {
			cfg.LogScopes = parseScopes(v)
		}
	}

	// [device]
	if ini.hasSection("device") {
		if v, ok := ini.get("device", "backend"); ok {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "v4l2" || v == "synthetic" {
				cfg.DeviceBackend = v
			}
		}
		if v, ok := ini.get("device", "color_device"); ok {
			cfg.ColorDevice = v
		}
		if v, ok := ini.get("device", "depth_device"); ok {
			cfg.DepthDevice = v
		}
		if v, ok := ini.get("device", "ir_device"); ok {
			cfg.IRDevice = v
		}
		if v, ok := ini.get("device", "kill_device_holders"); ok {
			cfg.KillDeviceHolders = asBool(v, cfg.KillDeviceHolders)
		}
		if v, ok := ini.get("device", "probe_timeout_ms"); ok {
			cfg.ProbeTimeoutMS = asInt(v, cfg.ProbeTimeoutMS, intPtr(100), intPtr(60000))
		}
	}

	// [sidebar] is copied verbatim; values are checked when the device opens.
	if sec, ok := ini["sidebar"]; ok {
		for k, v := range sec {
			cfg.Sidebar[k] = v
		}
	}

	// [recording]
	if ini.hasSection("recording") {
		if v, ok := ini.get("recording", "video_dir"); ok && v != "" {
			cfg.VideoDir = expandHome(v)
		}
		if v, ok := ini.get("recording", "debug"); ok {
			cfg.Debug = asBool(v, cfg.Debug)
		}
	}

	// [performance]
	if ini.hasSection("performance") {
		if v, ok := ini.get("performance", "dynamic_fps"); ok {
			cfg.DynamicFPSEnabled = asBool(v, cfg.DynamicFPSEnabled)
		}
		if v, ok := ini.get("performance", "perf_check_interval_ms"); ok {
			cfg.PerfCheckIntervalMS = asInt(v, cfg.PerfCheckIntervalMS, intPtr(250), nil)
		}
		if v, ok := ini.get("performance", "min_dynamic_fps"); ok {
			cfg.MinDynamicFPS = asInt(v, cfg.MinDynamicFPS, intPtr(1), nil)
		}
		if v, ok := ini.get("performance", "stop_timeout_ms"); ok {
			cfg.StopTimeoutMS = asInt(v, cfg.StopTimeoutMS, intPtr(50), intPtr(30000))
		}
	}

	// [profile]
	if ini.hasSection("profile") {
		if v, ok := ini.get("profile", "ui_fps"); ok {
			cfg.UIFPS = asInt(v, cfg.UIFPS, intPtr(1), intPtr(60))
		}
		if v, ok := ini.get("profile", "preview_width"); ok {
			cfg.PreviewWidth = asInt(v, cfg.PreviewWidth, intPtr(0), intPtr(3840))
		}
	}

	// [health]
	if ini.hasSection("health") {
		if v, ok := ini.get("health", "log_interval_sec"); ok {
			cfg.HealthLogIntervalSec = asFloat(v, cfg.HealthLogIntervalSec, floatPtr(0), nil)
		}
	}
}

// SidebarSelection returns a copy of the sidebar options.
func (c *Config) SidebarSelection() map[string]string {
	out := make(map[string]string, len(c.Sidebar))
	for k, v := range c.Sidebar {
		out[k] = v
	}
	return out
}

// SidebarKeys returns the sidebar option names in sorted order.
func (c *Config) SidebarKeys() []string {
	keys := make([]string, 0, len(c.Sidebar))
	for k := range c.Sidebar {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Validate
// =============================================================================

// Validate checks whether the Config values are reasonable and returns
// warnings. Returns ok=false if any setting is critically problematic.
func (c *Config) Validate() (ok bool, warnings []string) {
	ok = true

	if c.DeviceBackend == "v4l2" && c.ColorDevice == "" {
		ok = false
		warnings = append(warnings, "v4l2 backend selected but no color_device configured")
	}

	if c.DeviceBackend == "v4l2" && c.DepthDevice == "" {
		warnings = append(warnings, "No depth_device configured - depth panel will stay empty")
	}

	if info, err := os.Stat(c.VideoDir); err != nil || !info.IsDir() {
		warnings = append(warnings, fmt.Sprintf("Video directory %s does not exist - recording will fail", c.VideoDir))
	}

	if fps, err := strconv.Atoi(c.Sidebar["camera_fps"]); err == nil && c.MinDynamicFPS > fps {
		warnings = append(warnings, fmt.Sprintf("MinDynamicFPS (%d) > camera_fps (%d)", c.MinDynamicFPS, fps))
	}

	if c.UIFPS > 60 {
		warnings = append(warnings, "UI FPS > 60 is wasteful and likely unsupported")
	}

	return ok, warnings
}
