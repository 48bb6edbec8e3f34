package device

import (
	"path/filepath"
	"time"
)

// RecordingExt is the container extension of recordings.
const RecordingExt = ".mkv"

const recordingLayout = "2006_01_02_15_04_05"

// RecordingPath returns <dir>/<YYYY_MM_DD_HH_MM_SS>.mkv for the instant t.
func RecordingPath(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format(recordingLayout)+RecordingExt)
}
