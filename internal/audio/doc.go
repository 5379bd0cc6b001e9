// Package audio provides microphone capture, speaker playback, and the
// duplex worker that streams both directions through a session while
// tracking whether the remote voice is currently speaking.
package audio
