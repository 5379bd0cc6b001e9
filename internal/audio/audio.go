package audio

import (
	"context"
	"errors"
	"time"
)

// Direction indicates which way an audio chunk flows
type Direction uint8

const (
	DirectionOutbound Direction = 1 // microphone to model
	DirectionInbound  Direction = 2 // model to speaker
)

// ErrCaptureClosed is returned by a Capturer after Close
var ErrCaptureClosed = errors.New("audio capturer is closed")

// Chunk is a span of raw PCM samples
type Chunk struct {
	PCM       []byte
	Direction Direction
	Timestamp time.Time
}

// Capturer produces outbound PCM chunks from the microphone. Capture blocks
// until a full chunk is available; Close unblocks a pending Capture.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// Player consumes inbound PCM. Play hands samples to the device buffer and
// returns quickly; Flush drops everything not yet played.
type Player interface {
	Play(pcm []byte) error
	Flush()
	Close() error
}
