package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talkstream/talkstream/internal/session"
)

const (
	// DefaultEndpoint is the Gemini Live websocket endpoint
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the live-capable model used when none is configured
	DefaultModel = "models/gemini-2.0-flash-exp"

	// audioInputMIME is the outbound PCM contract of the Live API
	audioInputMIME = "audio/pcm;rate=16000"

	// maxMessageSize bounds inbound websocket messages (16MB)
	maxMessageSize = 16 * 1024 * 1024

	setupTimeout = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// ErrMissingCredential indicates no API key was configured. The controller
// treats it as a configuration failure at session start.
var ErrMissingCredential = errors.New("gemini api key is not configured")

// Config contains connection parameters for the Live API
type Config struct {
	Endpoint           string
	APIKey             string
	Model              string
	SystemInstruction  string
	ResponseModalities []string
	ConnectTimeout     time.Duration
	MaxRetries         int
}

// applyDefaults fills unset fields
func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if len(c.ResponseModalities) == 0 {
		c.ResponseModalities = []string{"AUDIO"}
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
}

// Client is a session.Transport over one Live API websocket connection
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	// writeMu serializes websocket writes; gorilla allows one writer
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the Live API, performs the setup handshake, and returns a
// ready transport. Connection attempts are retried with exponential backoff;
// a missing credential fails immediately.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (session.Transport, error) {
	cfg.applyDefaults()

	if cfg.APIKey == "" {
		return nil, ErrMissingCredential
	}

	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying Live API connection",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
			}

			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}

		client, err := dialOnce(ctx, cfg, logger)
		if err == nil {
			return client, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("failed to connect to Live API after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// dialOnce performs a single connect plus setup handshake
func dialOnce(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", cfg.APIKey)

	conn, resp, err := dialer.DialContext(ctx, cfg.Endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{conn: conn, logger: logger}

	setup := clientMessage{
		Setup: &setupPayload{
			Model: cfg.Model,
			GenerationConfig: &generationConfig{
				ResponseModalities: cfg.ResponseModalities,
			},
		},
	}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &content{
			Parts: []part{{Text: cfg.SystemInstruction}},
		}
	}

	if err := c.writeJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send setup: %w", err)
	}

	// The server acknowledges setup before any media may flow.
	conn.SetReadDeadline(time.Now().Add(setupTimeout))
	var ack serverMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read setup response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if ack.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected message before setup completion")
	}

	logger.Info("Live API session established",
		slog.String("model", cfg.Model),
	)

	return c, nil
}

// SendFrame transmits one encoded video frame
func (c *Client) SendFrame(ctx context.Context, mimeType string, data []byte) error {
	msg := clientMessage{
		RealtimeInput: &realtimeInput{
			MediaChunks: []inlineData{{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(data),
			}},
		},
	}
	return c.writeJSON(msg)
}

// SendAudio transmits one chunk of 16 kHz mono PCM
func (c *Client) SendAudio(ctx context.Context, pcm []byte) error {
	msg := clientMessage{
		RealtimeInput: &realtimeInput{
			MediaChunks: []inlineData{{
				MimeType: audioInputMIME,
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
	return c.writeJSON(msg)
}

// Receive blocks for the next server message and maps it to a session
// message. Close from another goroutine unblocks a pending Receive.
func (c *Client) Receive(ctx context.Context) (*session.Message, error) {
	for {
		var raw serverMessage
		if err := c.conn.ReadJSON(&raw); err != nil {
			return nil, fmt.Errorf("websocket read failed: %w", err)
		}

		if raw.ServerContent == nil {
			// Setup acks and unknown message kinds carry no media.
			continue
		}

		msg := &session.Message{
			TurnComplete: raw.ServerContent.TurnComplete,
			Interrupted:  raw.ServerContent.Interrupted,
		}

		if turn := raw.ServerContent.ModelTurn; turn != nil {
			for _, p := range turn.Parts {
				if p.Text != "" {
					msg.Text += p.Text
				}
				if p.InlineData != nil && p.InlineData.Data != "" {
					audio, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
					if err != nil {
						return nil, fmt.Errorf("failed to decode inline audio: %w", err)
					}
					msg.Audio = append(msg.Audio, audio...)
				}
			}
		}

		return msg, nil
	}
}

// Close sends a close frame and tears the connection down. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// writeJSON serializes one websocket write
func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}
