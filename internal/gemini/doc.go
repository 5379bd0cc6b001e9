// Package gemini implements the session transport over the Gemini Live
// bidirectional websocket API: setup handshake, realtime media input, and
// model audio output.
package gemini
