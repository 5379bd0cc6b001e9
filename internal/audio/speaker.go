package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// SpeakerPlayer plays 16-bit mono PCM through the default output device.
// Play appends into an internal buffer that the oto player pulls from via a
// feed reader; Flush drops buffered samples for barge-in.
type SpeakerPlayer struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  *oto.Player
	feed    *speakerFeed
	playing bool
	closed  bool
}

// SpeakerConfig contains playback parameters
type SpeakerConfig struct {
	SampleRate int
}

// NewSpeakerPlayer opens the default playback device
func NewSpeakerPlayer(cfg SpeakerConfig) (*SpeakerPlayer, error) {
	if cfg.SampleRate < 8000 {
		return nil, fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", cfg.SampleRate)
	}

	opts := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		// ~100 ms device buffer keeps latency low for conversation.
		BufferSize: cfg.SampleRate * 2 / 10,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}
	<-ready

	s := &SpeakerPlayer{
		otoCtx: otoCtx,
		buf:    make([]byte, 0, cfg.SampleRate*4),
	}
	s.cond = sync.NewCond(&s.mu)

	return s, nil
}

// Play buffers a chunk for playback, starting the device player on first use
func (s *SpeakerPlayer) Play(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("speaker is closed")
	}

	s.buf = append(s.buf, pcm...)

	if !s.playing {
		s.playing = true
		s.feed = &speakerFeed{s: s}
		s.player = s.otoCtx.NewPlayer(s.feed)
		s.player.Play()
	}

	s.cond.Broadcast()
	return nil
}

// speakerFeed is the io.Reader one oto player pulls from. A flushed player's
// feed goes stale so its pull goroutine exits instead of stealing samples
// from the replacement player.
type speakerFeed struct {
	s     *SpeakerPlayer
	stale bool
}

func (f *speakerFeed) Read(p []byte) (int, error) {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed && !f.stale {
		s.cond.Wait()
	}

	if f.stale {
		return 0, io.EOF
	}

	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush discards everything not yet played. Used when the model is
// interrupted so stale speech does not finish after barge-in.
func (s *SpeakerPlayer) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]

	if s.feed != nil {
		s.feed.stale = true
		s.feed = nil
	}
	s.cond.Broadcast()

	if s.player != nil && s.playing {
		s.playing = false
		player := s.player
		s.player = nil
		s.mu.Unlock()

		player.Pause()
		player.Reset()
		player.Close()
		return
	}
	s.mu.Unlock()
}

// Close stops playback and releases the device
func (s *SpeakerPlayer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.feed = nil
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}

	return nil
}
