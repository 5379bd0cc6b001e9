package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talkstream/talkstream/internal/audio"
	"github.com/talkstream/talkstream/internal/capture"
	"github.com/talkstream/talkstream/internal/frame"
	"github.com/talkstream/talkstream/internal/metrics"
	"github.com/talkstream/talkstream/internal/session"
)

// ErrBusy is returned when a toggle arrives while a session transition is
// already in flight. The caller retries after the transition settles.
var ErrBusy = errors.New("session transition in progress")

// frameSendWait bounds each blocking pop in the frame sender loop so the
// loop re-checks cancellation at least this often.
const frameSendWait = time.Second

// speakingPollInterval is how often the speaking gauge is refreshed
const speakingPollInterval = 200 * time.Millisecond

// DialFunc establishes the media transport for a new session
type DialFunc func(ctx context.Context) (session.Transport, error)

// AudioFactory opens the microphone and speaker for a new session
type AudioFactory func() (audio.Capturer, audio.Player, error)

// SourceFactory builds the frame source for a session
type SourceFactory interface {
	NewSource(mode capture.Mode, window capture.WindowTarget) (capture.Source, error)
}

// Notifier delivers best-effort desktop notifications
type Notifier interface {
	Notify(title, message string)
}

// Config contains controller parameters
type Config struct {
	FPS             int
	QueueCapacity   int
	SpeakingTimeout time.Duration
	DefaultMode     capture.Mode
}

// Status is the controller state snapshot served by the control API
type Status struct {
	State     string `json:"state"`
	Mode      string `json:"mode"`
	Speaking  bool   `json:"speaking"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Controller runs at most one streaming session and serializes all state
// transitions behind a mutex. Slow work (dialing, device setup, teardown)
// happens outside the lock while the state holds Starting or Stopping.
type Controller struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier Notifier

	dial    DialFunc
	sources SourceFactory
	audioIO AudioFactory

	mu      sync.Mutex
	state   State
	mode    capture.Mode
	window  capture.WindowTarget
	lastErr error
	active  *activeSession
}

// activeSession holds everything owned by one running session
type activeSession struct {
	id        string
	mode      capture.Mode
	startTime time.Time

	sess     *session.Session
	duplex   *audio.Duplex
	queue    *frame.Queue
	producer *capture.Producer
	source   capture.Source
	mic      audio.Capturer
	spk      audio.Player

	cancel context.CancelFunc

	// fatal receives the first hard error from the frame sender. Audio
	// worker failures arrive on the duplex fatal channel.
	fatal chan error

	// wg tracks the controller-owned loops: capture producer and frame
	// sender. The duplex worker tracks its own loops.
	wg sync.WaitGroup
}

// New creates a controller
func New(cfg Config, dial DialFunc, sources SourceFactory, audioIO AudioFactory,
	notifier Notifier, m *metrics.Metrics, logger *slog.Logger) *Controller {

	return &Controller{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		notifier: notifier,
		dial:     dial,
		sources:  sources,
		audioIO:  audioIO,
		state:    StateIdle,
		mode:     cfg.DefaultMode,
	}
}

// Toggle starts a session when idle and stops the running one when active.
// Mid-transition toggles are rejected with ErrBusy so rapid triggers cannot
// corrupt the lifecycle.
func (c *Controller) Toggle(mode capture.Mode) error {
	c.mu.Lock()

	switch c.state {
	case StateStarting, StateStopping:
		c.mu.Unlock()
		return ErrBusy

	case StateActive:
		act := c.active
		c.state = StateStopping
		c.mu.Unlock()

		c.teardown(act, nil)
		return nil

	default: // StateIdle
		c.state = StateStarting
		c.mode = mode
		window := c.window
		c.mu.Unlock()

		act, err := c.startSession(mode, window)

		c.mu.Lock()
		if err != nil {
			c.state = StateIdle
			c.lastErr = err
			c.mu.Unlock()

			c.metrics.RecordSessionFailed()
			c.logger.Error("Session start failed",
				slog.String("mode", mode.String()),
				slog.String("error", err.Error()),
			)
			c.notifier.Notify("TalkStream", fmt.Sprintf("Failed to start %s session: %v", mode, err))
			return err
		}

		c.active = act
		c.state = StateActive
		c.lastErr = nil
		c.mu.Unlock()

		c.metrics.RecordSessionStarted()
		c.logger.Info("Session started",
			slog.String("session_id", act.id),
			slog.String("mode", mode.String()),
		)
		c.notifier.Notify("TalkStream", fmt.Sprintf("Session started (%s)", mode))
		return nil
	}
}

// Stop stops the running session if there is one. Idle is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()

	switch c.state {
	case StateStarting, StateStopping:
		c.mu.Unlock()
		return ErrBusy
	case StateIdle:
		c.mu.Unlock()
		return nil
	default:
		act := c.active
		c.state = StateStopping
		c.mu.Unlock()

		c.teardown(act, nil)
		return nil
	}
}

// SetWindow stores the window target for window-mode sessions. When a window
// session is active it is restarted so the new target takes effect.
func (c *Controller) SetWindow(target capture.WindowTarget) error {
	if err := target.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.window = target
	restart := c.state == StateActive && c.mode == capture.ModeWindow
	c.mu.Unlock()

	if !restart {
		return nil
	}

	if err := c.Toggle(capture.ModeWindow); err != nil {
		return fmt.Errorf("failed to stop window session: %w", err)
	}
	if err := c.Toggle(capture.ModeWindow); err != nil {
		return fmt.Errorf("failed to restart window session: %w", err)
	}
	return nil
}

// CurrentState returns a consistent snapshot of the controller
func (c *Controller) CurrentState() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		State: c.state.String(),
		Mode:  c.mode.String(),
	}
	if c.lastErr != nil {
		status.Error = c.lastErr.Error()
	}
	if c.active != nil {
		status.SessionID = c.active.id
		status.Speaking = c.active.duplex.Speaking()
	}

	return status
}

// startSession builds and launches every worker of a session. On any failure
// the partially built resources are released and the error is returned.
func (c *Controller) startSession(mode capture.Mode, window capture.WindowTarget) (*activeSession, error) {
	source, err := c.sources.NewSource(mode, window)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture source: %w", err)
	}

	mic, spk, err := c.audioIO()
	if err != nil {
		if source != nil {
			source.Close()
		}
		return nil, fmt.Errorf("failed to open audio devices: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	transport, err := c.dial(ctx)
	if err != nil {
		cancel()
		mic.Close()
		spk.Close()
		if source != nil {
			source.Close()
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	act := &activeSession{
		id:        uuid.NewString(),
		mode:      mode,
		startTime: time.Now(),
		source:    source,
		mic:       mic,
		spk:       spk,
		cancel:    cancel,
		fatal:     make(chan error, 1),
	}

	act.sess = session.New(act.id, transport, c.logger)
	act.duplex = audio.NewDuplex(act.sess, mic, spk,
		audio.DuplexConfig{SpeakingTimeout: c.cfg.SpeakingTimeout}, c.logger)

	if source != nil {
		queue, err := frame.NewQueue(c.cfg.QueueCapacity)
		if err != nil {
			cancel()
			act.sess.Close()
			mic.Close()
			spk.Close()
			source.Close()
			return nil, err
		}
		act.queue = queue

		interval := time.Second / time.Duration(c.cfg.FPS)
		act.producer = capture.NewProducer(source, queue, interval, c.logger)

		act.wg.Add(2)
		go func() {
			defer act.wg.Done()
			act.producer.Run(ctx)
		}()
		go func() {
			defer act.wg.Done()
			c.frameSenderLoop(ctx, act)
		}()
	}

	act.duplex.Start(ctx)

	go c.watchdog(ctx, act)
	go c.speakingIndicatorLoop(ctx, act)

	return act, nil
}

// frameSenderLoop drains the queue into the session
func (c *Controller) frameSenderLoop(ctx context.Context, act *activeSession) {
	for {
		f, ok := act.queue.PopWait(ctx, frameSendWait)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		if err := act.sess.SendFrame(ctx, f); err != nil {
			if ctx.Err() != nil || errors.Is(err, session.ErrClosed) {
				return
			}
			// The teardown is left to the watchdog; this loop is one of
			// the workers teardown waits for.
			select {
			case act.fatal <- err:
			default:
			}
			return
		}

		c.metrics.RecordFrameSent()
		c.metrics.FrameBytes.Observe(float64(len(f.Data)))
	}
}

// watchdog tears the session down on the first hard error from the audio
// worker
func (c *Controller) watchdog(ctx context.Context, act *activeSession) {
	select {
	case err := <-act.duplex.Fatal():
		c.hardStop(act, err)
	case err := <-act.fatal:
		c.hardStop(act, err)
	case <-ctx.Done():
	}
}

// speakingIndicatorLoop keeps the speaking gauge current while the session
// runs
func (c *Controller) speakingIndicatorLoop(ctx context.Context, act *activeSession) {
	ticker := time.NewTicker(speakingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.metrics.SetSpeaking(false)
			return
		case <-ticker.C:
			c.metrics.SetSpeaking(act.duplex.Speaking())
		}
	}
}

// hardStop transitions to Stopping on a worker failure. If a toggle already
// claimed the transition, the failure is left to that teardown.
func (c *Controller) hardStop(act *activeSession, cause error) {
	c.mu.Lock()
	if c.state != StateActive || c.active != act {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	c.mu.Unlock()

	c.logger.Error("Session failed, stopping",
		slog.String("session_id", act.id),
		slog.String("error", cause.Error()),
	)

	c.teardown(act, cause)
	c.notifier.Notify("TalkStream", fmt.Sprintf("Session lost: %v", cause))
}

// teardown stops all workers in an order that guarantees no sender touches
// the transport after it is closed: cancel, wake the microphone, wait for
// every sending loop, close the session, then wait for the inbound loop.
func (c *Controller) teardown(act *activeSession, cause error) {
	act.cancel()
	act.mic.Close()

	act.wg.Wait()
	act.duplex.WaitOutbound()

	if err := act.sess.Close(); err != nil {
		c.logger.Warn("Transport close failed",
			slog.String("session_id", act.id),
			slog.String("error", err.Error()),
		)
	}

	act.duplex.Wait()

	act.spk.Close()
	if act.source != nil {
		act.source.Close()
	}

	duration := time.Since(act.startTime)
	c.recordSessionMetrics(act, duration)

	dstats := act.duplex.GetStats()
	c.logger.Info("Session stopped",
		slog.String("session_id", act.id),
		slog.String("mode", act.mode.String()),
		slog.Duration("duration", duration),
		slog.Uint64("audio_chunks_sent", dstats.ChunksSent),
		slog.Uint64("audio_chunks_received", dstats.ChunksReceived),
	)

	c.mu.Lock()
	c.active = nil
	c.state = StateIdle
	c.lastErr = cause
	c.mu.Unlock()

	if cause == nil {
		c.notifier.Notify("TalkStream", "Session stopped")
	}
}

// recordSessionMetrics rolls worker statistics into the Prometheus counters
func (c *Controller) recordSessionMetrics(act *activeSession, duration time.Duration) {
	c.metrics.RecordSessionStopped(duration.Seconds())

	dstats := act.duplex.GetStats()
	c.metrics.AudioChunksSent.Add(float64(dstats.ChunksSent))
	c.metrics.AudioChunksReceived.Add(float64(dstats.ChunksReceived))
	c.metrics.PlaybackErrors.Add(float64(dstats.PlaybackErrors))

	if act.queue != nil {
		qstats := act.queue.GetStats()
		c.metrics.FramesEvicted.Add(float64(qstats.Evicted))
	}
	if act.producer != nil {
		pstats := act.producer.GetStats()
		c.metrics.FramesCaptured.Add(float64(pstats.FramesCaptured))
		c.metrics.CaptureErrors.Add(float64(pstats.CaptureErrors))
	}
}
