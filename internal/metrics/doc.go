// Package metrics provides Prometheus instrumentation for sessions, capture,
// audio, and the control API.
package metrics
