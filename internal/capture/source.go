package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kbinani/screenshot"
)

// Source produces encoded frames for one capture target. Capture errors are
// soft: the producer logs them and skips the tick.
type Source interface {
	// Capture grabs one frame and returns it encoded for transmission.
	Capture(ctx context.Context) ([]byte, error)

	// MIMEType returns the encoding of frames produced by Capture.
	MIMEType() string

	// Close releases any capture resources.
	Close() error
}

// WindowTarget identifies a window by its on-screen region. Resolving a
// native window handle to display coordinates is the caller's job; the
// capture layer only understands pixels.
type WindowTarget struct {
	Display int    `json:"display"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Title   string `json:"title,omitempty"`
}

// Validate checks the target describes a non-empty region
func (t WindowTarget) Validate() error {
	if t.Width < 1 || t.Height < 1 {
		return fmt.Errorf("window region must be non-empty, got %dx%d", t.Width, t.Height)
	}
	return nil
}

// ScreenSource captures a full display and encodes it as JPEG
type ScreenSource struct {
	display int
	quality int
}

// NewScreenSource creates a source for the given display index
func NewScreenSource(display, jpegQuality int) (*ScreenSource, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays found")
	}
	if display < 0 || display >= n {
		return nil, fmt.Errorf("display must be between 0 and %d, got %d", n-1, display)
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		return nil, fmt.Errorf("jpeg quality must be between 1 and 100, got %d", jpegQuality)
	}

	return &ScreenSource{display: display, quality: jpegQuality}, nil
}

// Capture grabs the display contents
func (s *ScreenSource) Capture(ctx context.Context) ([]byte, error) {
	img, err := screenshot.CaptureDisplay(s.display)
	if err != nil {
		return nil, fmt.Errorf("failed to capture display %d: %w", s.display, err)
	}

	return encodeJPEG(img, s.quality)
}

// MIMEType returns the frame encoding
func (s *ScreenSource) MIMEType() string {
	return "image/jpeg"
}

// Close releases capture resources
func (s *ScreenSource) Close() error {
	return nil
}

// RegionSource captures a rectangular region of the virtual screen,
// typically the bounds of a selected window.
type RegionSource struct {
	bounds  image.Rectangle
	quality int
	title   string
}

// NewRegionSource creates a source for the given window target
func NewRegionSource(target WindowTarget, jpegQuality int) (*RegionSource, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		return nil, fmt.Errorf("jpeg quality must be between 1 and 100, got %d", jpegQuality)
	}

	return &RegionSource{
		bounds:  image.Rect(target.X, target.Y, target.X+target.Width, target.Y+target.Height),
		quality: jpegQuality,
		title:   target.Title,
	}, nil
}

// Capture grabs the window region. The window may have been closed or moved
// off-screen since selection; those failures surface as soft capture errors.
func (s *RegionSource) Capture(ctx context.Context) ([]byte, error) {
	img, err := screenshot.CaptureRect(s.bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region %v: %w", s.bounds, err)
	}

	return encodeJPEG(img, s.quality)
}

// MIMEType returns the frame encoding
func (s *RegionSource) MIMEType() string {
	return "image/jpeg"
}

// Close releases capture resources
func (s *RegionSource) Close() error {
	return nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
