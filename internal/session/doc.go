// Package session wraps a bidirectional media transport with serialized
// writes and idempotent close, so capture and audio workers can share one
// connection safely.
package session
