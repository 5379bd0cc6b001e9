package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talkstream/talkstream/internal/frame"
)

// ErrClosed is returned by session operations after Close, distinguishing
// orderly shutdown from transport failure.
var ErrClosed = errors.New("session is closed")

// Message is one inbound event from the remote model
type Message struct {
	Audio        []byte
	Text         string
	TurnComplete bool
	Interrupted  bool
}

// Transport is the wire protocol behind a session. Implementations must
// tolerate Close being called while Receive blocks; Receive then returns an
// error.
type Transport interface {
	SendFrame(ctx context.Context, mimeType string, data []byte) error
	SendAudio(ctx context.Context, pcm []byte) error
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// Session serializes concurrent senders over one transport. The frame sender
// and the audio outbound loop write through the same mutex so messages never
// interleave on the wire. A single reader owns Receive.
type Session struct {
	id        string
	transport Transport
	logger    *slog.Logger
	startTime time.Time

	sendMu    sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	// Statistics
	framesSent atomic.Uint64
	audioSent  atomic.Uint64
	messagesIn atomic.Uint64
	bytesOut   atomic.Uint64
}

// SessionInfo represents session metadata for the control API
type SessionInfo struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"start_time"`
	FramesSent uint64    `json:"frames_sent"`
	AudioSent  uint64    `json:"audio_chunks_sent"`
	MessagesIn uint64    `json:"messages_received"`
	BytesOut   uint64    `json:"bytes_sent"`
}

// New creates a session over an established transport
func New(id string, transport Transport, logger *slog.Logger) *Session {
	return &Session{
		id:        id,
		transport: transport,
		logger:    logger,
		startTime: time.Now(),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// SendFrame transmits one captured frame. Any transport failure marks the
// session closed; later sends return ErrClosed.
func (s *Session) SendFrame(ctx context.Context, f frame.Frame) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}

	if err := s.transport.SendFrame(ctx, f.MIMEType, f.Data); err != nil {
		s.markFailed()
		return fmt.Errorf("failed to send frame %d: %w", f.Sequence, err)
	}

	s.framesSent.Add(1)
	s.bytesOut.Add(uint64(len(f.Data)))
	return nil
}

// SendAudio transmits one outbound PCM chunk
func (s *Session) SendAudio(ctx context.Context, pcm []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}

	if err := s.transport.SendAudio(ctx, pcm); err != nil {
		s.markFailed()
		return fmt.Errorf("failed to send audio: %w", err)
	}

	s.audioSent.Add(1)
	s.bytesOut.Add(uint64(len(pcm)))
	return nil
}

// Receive blocks until the next inbound message. Only one goroutine may call
// Receive.
func (s *Session) Receive(ctx context.Context) (*Message, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	msg, err := s.transport.Receive(ctx)
	if err != nil {
		if s.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}

	s.messagesIn.Add(1)
	return msg, nil
}

// Close shuts the transport down. It is idempotent: the transport is closed
// exactly once and every call returns the same result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.transport.Close()

		s.logger.Info("Session closed",
			slog.String("session_id", s.id),
			slog.Duration("duration", time.Since(s.startTime)),
			slog.Uint64("frames_sent", s.framesSent.Load()),
			slog.Uint64("audio_chunks_sent", s.audioSent.Load()),
			slog.Uint64("messages_received", s.messagesIn.Load()),
		)
	})

	return s.closeErr
}

// IsClosed reports whether the session has been closed or has failed
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// GetSessionInfo returns session metadata
func (s *Session) GetSessionInfo() SessionInfo {
	return SessionInfo{
		ID:         s.id,
		StartTime:  s.startTime,
		FramesSent: s.framesSent.Load(),
		AudioSent:  s.audioSent.Load(),
		MessagesIn: s.messagesIn.Load(),
		BytesOut:   s.bytesOut.Load(),
	}
}

// markFailed flags the session so pending senders stop early. The transport
// itself is still torn down by Close.
func (s *Session) markFailed() {
	s.closed.Store(true)
}
