// Package capture produces a cropped, JPEG-encoded image of a screen
// rectangle on demand. Platform-specific capturers are selected by Go build
// tags, mirroring the teacher's desktop-capture package; this package keeps
// the same interface shape but trims the GPU-duplication/streaming pipeline
// down to a single on-demand full-screen-then-crop capture, which is all a
// per-post session needs.
package capture

import (
	"fmt"
	"image"

	"github.com/lensguard/agent/internal/cropcoord"
)

// ScreenCapturer captures full-screen pixels and reports display bounds.
type ScreenCapturer interface {
	// Capture captures the full primary display. Returns nil, nil when no
	// frame is currently available (e.g. a transient permission or desktop
	// switch outage) so callers can skip the tick without treating it as
	// fatal.
	Capture() (*image.RGBA, error)

	// Bounds returns the primary display's logical size and physical scale
	// factor (e.g. 2.0 on a Retina/HiDPI display).
	Bounds() (width, height int, scaleFactor float64, err error)

	// Close releases any resources held by the capturer.
	Close() error
}

// Config holds capturer configuration.
type Config struct {
	// DisplayIndex selects which display to capture (0 = primary).
	DisplayIndex int
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{DisplayIndex: 0}
}

// New creates a platform-specific screen capturer.
func New(cfg Config) (ScreenCapturer, error) {
	return newPlatformCapturer(cfg)
}

// ErrNotSupported is returned when screen capture is not available on the
// current platform or build (e.g. macOS without CGO).
var ErrNotSupported = fmt.Errorf("capture: screen capture not supported on this platform")

// ErrPermissionDenied is returned when the OS denies screen-recording
// permission.
var ErrPermissionDenied = fmt.Errorf("capture: screen recording permission denied")

// Frame is a cropped, JPEG-encoded capture result.
type Frame struct {
	JPEG   []byte
	Width  int
	Height int
}

// CaptureCrop captures the full screen, translates rect into physical
// pixels via cropcoord, crops it out, and JPEG-encodes the result at
// quality. Returns cropcoord.ErrNonPositiveArea when rect has no pixels
// left after clamping, and nil,nil (no error) when the capturer reports no
// frame available.
func CaptureCrop(capturer ScreenCapturer, rect cropcoord.Rect, dpr float64, quality int) (*Frame, error) {
	full, err := capturer.Capture()
	if err != nil {
		return nil, err
	}
	if full == nil {
		return nil, nil
	}

	logicalWidth, logicalHeight, scaleFactor, err := capturer.Bounds()
	if err != nil {
		return nil, err
	}

	bounds := full.Bounds()
	pixRect, err := cropcoord.ToPixelRect(rect, scaleFactor, logicalWidth, logicalHeight, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	cropped := cropImage(full, pixRect)
	jpegBytes, err := EncodeJPEG(cropped, quality)
	if err != nil {
		return nil, err
	}

	return &Frame{JPEG: jpegBytes, Width: pixRect.W, Height: pixRect.H}, nil
}

func cropImage(src *image.RGBA, r cropcoord.PixelRect) *image.RGBA {
	srcBounds := src.Bounds()
	ox, oy := srcBounds.Min.X, srcBounds.Min.Y
	dst := image.NewRGBA(image.Rect(0, 0, r.W, r.H))
	for y := 0; y < r.H; y++ {
		srcStart := (oy+r.Y+y-srcBounds.Min.Y)*src.Stride + (ox+r.X-srcBounds.Min.X)*4
		dstStart := y * dst.Stride
		copy(dst.Pix[dstStart:dstStart+r.W*4], src.Pix[srcStart:srcStart+r.W*4])
	}
	return dst
}
