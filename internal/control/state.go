package control

import "errors"

// ErrInvalidTransition is returned when a toggle is not allowed in the
// current state, e.g. recording while streaming.
var ErrInvalidTransition = errors.New("control: invalid transition")

// State is the state of the control surface.
type State uint

const (
	StateClosed State = iota
	StateOpenIdle
	StateOpenStreaming
	StateOpenRecording
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpenIdle:
		return "open-idle"
	case StateOpenStreaming:
		return "open-streaming"
	case StateOpenRecording:
		return "open-recording"
	}
	return "unknown"
}

// Open reports whether a device is open.
func (s State) Open() bool { return s != StateClosed }

// Active reports whether acquisition is running.
func (s State) Active() bool {
	return s == StateOpenStreaming || s == StateOpenRecording
}

// Button labels.
const (
	LabelDeviceOpen  = "Device open"
	LabelDeviceClose = "Device close"
	LabelStream      = "▶"
	LabelRecord      = "●"
	LabelStop        = "■"
)

// Controls is what the three buttons show in a given state.
type Controls struct {
	DeviceLabel   string
	StreamLabel   string
	StreamEnabled bool
	RecordLabel   string
	RecordEnabled bool
}

// ControlsFor derives the button labels and enablement from s. Streaming
// and recording exclude each other; neither is available while closed.
func ControlsFor(s State) Controls {
	c := Controls{
		DeviceLabel: LabelDeviceOpen,
		StreamLabel: LabelStream,
		RecordLabel: LabelRecord,
	}
	switch s {
	case StateOpenIdle:
		c.DeviceLabel = LabelDeviceClose
		c.StreamEnabled = true
		c.RecordEnabled = true
	case StateOpenStreaming:
		c.DeviceLabel = LabelDeviceClose
		c.StreamLabel = LabelStop
		c.StreamEnabled = true
	case StateOpenRecording:
		c.DeviceLabel = LabelDeviceClose
		c.RecordLabel = LabelStop
		c.RecordEnabled = true
	}
	return c
}
