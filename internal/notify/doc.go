// Package notify delivers best-effort desktop notifications for session
// lifecycle events.
package notify
