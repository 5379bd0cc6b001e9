// Package server provides the HTTP control API: session toggle, window
// selection, state and health endpoints, Prometheus metrics, and a websocket
// state feed for UI frontends.
package server
