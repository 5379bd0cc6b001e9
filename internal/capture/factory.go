package capture

import "fmt"

// FactoryConfig contains settings shared by all built-in sources
type FactoryConfig struct {
	Display     int
	JPEGQuality int
}

// Factory builds the frame source for a session. The camera hook lets an
// embedder plug in a platform camera implementation; without one, camera
// sessions fail at startup with a configuration error.
type Factory struct {
	cfg    FactoryConfig
	camera func() (Source, error)
}

// NewFactory creates a source factory
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{cfg: cfg}
}

// SetCameraSource installs a camera source constructor
func (f *Factory) SetCameraSource(fn func() (Source, error)) {
	f.camera = fn
}

// NewSource builds a source for the given mode. ModeNone returns a nil
// source: audio-only sessions run no capture loop.
func (f *Factory) NewSource(mode Mode, window WindowTarget) (Source, error) {
	switch mode {
	case ModeNone:
		return nil, nil
	case ModeScreen:
		return NewScreenSource(f.cfg.Display, f.cfg.JPEGQuality)
	case ModeWindow:
		return NewRegionSource(window, f.cfg.JPEGQuality)
	case ModeCamera:
		if f.camera == nil {
			return nil, fmt.Errorf("camera capture is not available: no camera source installed")
		}
		return f.camera()
	default:
		return nil, fmt.Errorf("unsupported capture mode %d", int(mode))
	}
}
