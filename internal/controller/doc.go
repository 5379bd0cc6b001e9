// Package controller owns the session lifecycle: the Idle, Starting, Active,
// Stopping state machine, the toggle semantics shared by every trigger
// (hotkey, tray, control API), and the teardown ordering that keeps workers
// from writing to a closed session.
package controller
