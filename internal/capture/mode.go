package capture

import "fmt"

// Mode selects what visual input accompanies the voice conversation
type Mode int

const (
	ModeNone Mode = iota
	ModeScreen
	ModeWindow
	ModeCamera
)

// ParseMode parses a mode name from configuration or the control API
func ParseMode(s string) (Mode, error) {
	switch s {
	case "none":
		return ModeNone, nil
	case "screen":
		return ModeScreen, nil
	case "window":
		return ModeWindow, nil
	case "camera":
		return ModeCamera, nil
	default:
		return ModeNone, fmt.Errorf("mode must be one of [none, screen, window, camera], got '%s'", s)
	}
}

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeScreen:
		return "screen"
	case ModeWindow:
		return "window"
	case ModeCamera:
		return "camera"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// NeedsVideo reports whether the mode streams frames in addition to audio
func (m Mode) NeedsVideo() bool {
	return m != ModeNone
}
