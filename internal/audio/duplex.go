package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talkstream/talkstream/internal/session"
)

// Duplex runs the two audio loops of a session: outbound (microphone to
// session) and inbound (session to speaker). The loops share nothing but the
// session and the speaking tracker.
type Duplex struct {
	sess     *session.Session
	capturer Capturer
	player   Player
	logger   *slog.Logger

	speakingTimeout time.Duration

	// lastInbound and turnEnded are unix nanos written only by the inbound
	// loop. Speaking() derives the flag from them on every read.
	lastInbound atomic.Int64
	turnEnded   atomic.Int64

	// fatal receives the first hard error from either loop
	fatal chan error

	wgOut sync.WaitGroup
	wgIn  sync.WaitGroup

	// Statistics
	chunksSent     atomic.Uint64
	chunksReceived atomic.Uint64
	playbackErrors atomic.Uint64
}

// DuplexConfig contains duplex worker parameters
type DuplexConfig struct {
	SpeakingTimeout time.Duration
}

// DuplexStats represents duplex worker statistics
type DuplexStats struct {
	ChunksSent     uint64 `json:"chunks_sent"`
	ChunksReceived uint64 `json:"chunks_received"`
	PlaybackErrors uint64 `json:"playback_errors"`
	Speaking       bool   `json:"speaking"`
}

// NewDuplex creates a duplex worker over an open session
func NewDuplex(sess *session.Session, capturer Capturer, player Player, cfg DuplexConfig, logger *slog.Logger) *Duplex {
	return &Duplex{
		sess:            sess,
		capturer:        capturer,
		player:          player,
		logger:          logger,
		speakingTimeout: cfg.SpeakingTimeout,
		fatal:           make(chan error, 2),
	}
}

// Start launches both loops
func (d *Duplex) Start(ctx context.Context) {
	d.wgOut.Add(1)
	go func() {
		defer d.wgOut.Done()
		d.outboundLoop(ctx)
	}()

	d.wgIn.Add(1)
	go func() {
		defer d.wgIn.Done()
		d.inboundLoop(ctx)
	}()
}

// Fatal delivers the first hard error from either loop
func (d *Duplex) Fatal() <-chan error {
	return d.fatal
}

// WaitOutbound blocks until the outbound loop has exited. Shutdown waits for
// senders before closing the session so nothing writes to a closed transport.
func (d *Duplex) WaitOutbound() {
	d.wgOut.Wait()
}

// Wait blocks until both loops have exited
func (d *Duplex) Wait() {
	d.wgOut.Wait()
	d.wgIn.Wait()
}

// Speaking reports whether the remote voice is audible right now: an inbound
// chunk arrived within the speaking timeout and no turn end came after it.
func (d *Duplex) Speaking() bool {
	last := d.lastInbound.Load()
	if last == 0 {
		return false
	}
	if d.turnEnded.Load() >= last {
		return false
	}
	return time.Since(time.Unix(0, last)) < d.speakingTimeout
}

// GetStats returns current duplex statistics
func (d *Duplex) GetStats() DuplexStats {
	return DuplexStats{
		ChunksSent:     d.chunksSent.Load(),
		ChunksReceived: d.chunksReceived.Load(),
		PlaybackErrors: d.playbackErrors.Load(),
		Speaking:       d.Speaking(),
	}
}

// outboundLoop streams microphone chunks into the session
func (d *Duplex) outboundLoop(ctx context.Context) {
	d.logger.Debug("Audio outbound loop started")

	for {
		if ctx.Err() != nil {
			d.logger.Debug("Audio outbound loop stopped",
				slog.Uint64("chunks_sent", d.chunksSent.Load()),
			)
			return
		}

		pcm, err := d.capturer.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrCaptureClosed) {
				return
			}
			d.logger.Warn("Microphone capture failed",
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := d.sess.SendAudio(ctx, pcm); err != nil {
			if ctx.Err() != nil || errors.Is(err, session.ErrClosed) {
				return
			}
			d.reportFatal(err)
			return
		}

		d.chunksSent.Add(1)
	}
}

// inboundLoop plays model audio and maintains the speaking tracker. Any
// receive failure outside shutdown is a hard error: the controller tears the
// session down.
func (d *Duplex) inboundLoop(ctx context.Context) {
	d.logger.Debug("Audio inbound loop started")

	for {
		msg, err := d.sess.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, session.ErrClosed) {
				d.logger.Debug("Audio inbound loop stopped",
					slog.Uint64("chunks_received", d.chunksReceived.Load()),
				)
				return
			}
			d.reportFatal(err)
			return
		}

		if msg.Interrupted {
			d.player.Flush()
			d.turnEnded.Store(time.Now().UnixNano())
			d.logger.Debug("Model interrupted, playback flushed")
		}

		if len(msg.Audio) > 0 {
			d.lastInbound.Store(time.Now().UnixNano())
			d.chunksReceived.Add(1)

			if err := d.player.Play(msg.Audio); err != nil {
				d.playbackErrors.Add(1)
				d.logger.Warn("Playback failed, dropping chunk",
					slog.String("error", err.Error()),
				)
			}
		}

		if msg.TurnComplete {
			d.turnEnded.Store(time.Now().UnixNano())
		}
	}
}

// reportFatal delivers a hard error without blocking
func (d *Duplex) reportFatal(err error) {
	select {
	case d.fatal <- err:
	default:
	}
}
