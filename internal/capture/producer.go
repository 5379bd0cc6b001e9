package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talkstream/talkstream/internal/frame"
)

// Producer runs the capture loop for one session: grab a frame on every tick,
// stamp it, and push it into the bounded queue. Capture failures skip the
// tick; the consumer simply sees a gap between frames.
type Producer struct {
	source   Source
	queue    *frame.Queue
	interval time.Duration
	logger   *slog.Logger

	// Statistics
	mu            sync.RWMutex
	framesOK      uint64
	captureErrors uint64
	nextSequence  uint64
}

// ProducerStats represents producer statistics
type ProducerStats struct {
	FramesCaptured uint64 `json:"frames_captured"`
	CaptureErrors  uint64 `json:"capture_errors"`
}

// NewProducer creates a capture producer that ticks at the given interval
func NewProducer(source Source, queue *frame.Queue, interval time.Duration, logger *slog.Logger) *Producer {
	return &Producer{
		source:   source,
		queue:    queue,
		interval: interval,
		logger:   logger,
	}
}

// Run executes the capture loop until the context is cancelled. No frame is
// pushed after cancellation is observed.
func (p *Producer) Run(ctx context.Context) {
	p.logger.Info("Capture producer started",
		slog.Duration("interval", p.interval),
		slog.String("mime_type", p.source.MIMEType()),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Capture producer stopped",
				slog.Uint64("frames_captured", p.framesCaptured()),
				slog.Uint64("capture_errors", p.errorCount()),
			)
			return
		case <-ticker.C:
			p.captureOnce(ctx)
		}
	}
}

// captureOnce grabs and enqueues a single frame
func (p *Producer) captureOnce(ctx context.Context) {
	data, err := p.source.Capture(ctx)
	if err != nil {
		p.mu.Lock()
		p.captureErrors++
		errCount := p.captureErrors
		p.mu.Unlock()

		p.logger.Warn("Frame capture failed, skipping tick",
			slog.String("error", err.Error()),
			slog.Uint64("total_errors", errCount),
		)
		return
	}

	// A cancellation may have arrived while the grab was in flight.
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	seq := p.nextSequence
	p.nextSequence++
	p.framesOK++
	p.mu.Unlock()

	f := frame.Frame{
		Data:      data,
		MIMEType:  p.source.MIMEType(),
		Timestamp: time.Now(),
		Sequence:  seq,
	}

	if p.queue.Push(f) {
		p.logger.Debug("Frame evicted under backpressure",
			slog.Uint64("sequence", seq),
			slog.Int("queue_capacity", p.queue.Capacity()),
		)
	}
}

// GetStats returns current producer statistics
func (p *Producer) GetStats() ProducerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProducerStats{
		FramesCaptured: p.framesOK,
		CaptureErrors:  p.captureErrors,
	}
}

func (p *Producer) framesCaptured() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.framesOK
}

func (p *Producer) errorCount() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.captureErrors
}
