package frame

import "time"

// Frame is a single captured image, already encoded for transmission.
type Frame struct {
	Data      []byte    `json:"-"`
	MIMEType  string    `json:"mime_type"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  uint64    `json:"sequence"`
}
