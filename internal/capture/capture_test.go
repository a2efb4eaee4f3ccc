package capture

import (
	"image"
	"image/color"
	"image/jpeg"
	"bytes"
	"testing"

	"github.com/lensguard/agent/internal/cropcoord"
)

type fakeCapturer struct {
	img                       *image.RGBA
	width, height             int
	scaleFactor               float64
	noFrame                   bool
}

func (f *fakeCapturer) Capture() (*image.RGBA, error) {
	if f.noFrame {
		return nil, nil
	}
	return f.img, nil
}

func (f *fakeCapturer) Bounds() (int, int, float64, error) {
	return f.width, f.height, f.scaleFactor, nil
}

func (f *fakeCapturer) Close() error { return nil }

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestEncodeJPEGClampsQuality(t *testing.T) {
	img := solidImage(4, 4, color.RGBA{R: 255, A: 255})

	data, err := EncodeJPEG(img, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
}

func TestCaptureCropProducesExpectedSize(t *testing.T) {
	capturer := &fakeCapturer{
		img:         solidImage(2000, 1600, color.RGBA{G: 255, A: 255}),
		width:       1000,
		height:      800,
		scaleFactor: 2,
	}

	frame, err := CaptureCrop(capturer, cropcoord.Rect{X: 10, Y: 20, W: 100, H: 50}, 2, 85)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame == nil {
		t.Fatal("expected non-nil frame")
	}
	if frame.Width != 200 || frame.Height != 100 {
		t.Errorf("got %dx%d, want 200x100", frame.Width, frame.Height)
	}
}

func TestCaptureCropReturnsNilOnNoFrame(t *testing.T) {
	capturer := &fakeCapturer{noFrame: true, width: 1000, height: 800, scaleFactor: 1}

	frame, err := CaptureCrop(capturer, cropcoord.Rect{X: 0, Y: 0, W: 10, H: 10}, 1, 85)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame != nil {
		t.Fatal("expected nil frame when capturer reports no frame")
	}
}

func TestCaptureCropFailsOnOffscreenRect(t *testing.T) {
	capturer := &fakeCapturer{
		img:         solidImage(1000, 800, color.RGBA{B: 255, A: 255}),
		width:       1000,
		height:      800,
		scaleFactor: 1,
	}

	_, err := CaptureCrop(capturer, cropcoord.Rect{X: -500, Y: -500, W: 50, H: 50}, 1, 85)
	if err != cropcoord.ErrNonPositiveArea {
		t.Fatalf("expected ErrNonPositiveArea, got %v", err)
	}
}
