package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MicCapturer reads 16-bit mono PCM from the default microphone. The device
// callback appends into an internal buffer; Capture cuts fixed-size chunks
// from it.
type MicCapturer struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool

	chunkBytes int
}

// MicConfig contains microphone capture parameters
type MicConfig struct {
	SampleRate  int
	ChunkMillis int
}

// NewMicCapturer opens the default capture device
func NewMicCapturer(cfg MicConfig) (*MicCapturer, error) {
	if cfg.SampleRate < 8000 {
		return nil, fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", cfg.SampleRate)
	}
	if cfg.ChunkMillis < 10 {
		return nil, fmt.Errorf("chunk duration must be at least 10 ms, got %d", cfg.ChunkMillis)
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	m := &MicCapturer{
		malgoCtx: malgoCtx,
		// 16-bit mono
		chunkBytes: cfg.SampleRate * 2 * cfg.ChunkMillis / 1000,
		buf:        make([]byte, 0, cfg.SampleRate*2),
	}
	m.cond = sync.NewCond(&m.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			m.mu.Lock()
			if !m.closed {
				m.buf = append(m.buf, pInputSamples...)
			}
			m.mu.Unlock()
			m.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("failed to init microphone: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}

	return m, nil
}

// Capture blocks until one chunk of samples is available. It returns
// ErrCaptureClosed after Close.
func (m *MicCapturer) Capture(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.buf) < m.chunkBytes && !m.closed {
		m.cond.Wait()
	}

	if m.closed {
		return nil, ErrCaptureClosed
	}

	pcm := make([]byte, m.chunkBytes)
	copy(pcm, m.buf[:m.chunkBytes])
	m.buf = m.buf[m.chunkBytes:]

	return pcm, nil
}

// Close stops the device and wakes any pending Capture
func (m *MicCapturer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
	}
	if m.malgoCtx != nil {
		_ = m.malgoCtx.Uninit()
		m.malgoCtx.Free()
	}

	return nil
}
