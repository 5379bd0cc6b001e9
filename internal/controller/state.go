package controller

import "fmt"

// State is the controller lifecycle state
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}
