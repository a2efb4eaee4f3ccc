// Package cropcoord turns location messages into capture rectangles and
// translates those rectangles into physical-pixel crops of a full-screen
// image. It holds no state and depends on nothing but the standard library:
// it is pure coordinate arithmetic, not a networked or stateful component.
package cropcoord

import (
	"fmt"

	"github.com/lensguard/agent/internal/locationmsg"
)

// Rect is a screen-space rectangle in CSS pixels.
type Rect struct {
	X, Y, W, H float64
}

// Event is what the coordinator emits for each incoming location message.
type Event struct {
	Active bool // false means "active-post-cleared"
	FullID string
	Rect   Rect
	DPR    float64
}

// Translate converts a location message into the coordinator's event. A nil
// Post yields an inactive event; otherwise the post's rectangle and dpr are
// carried through unchanged — windowScreenX/Y are not applied here, per the
// sensor's contract that x/y already are absolute screen coordinates.
func Translate(msg locationmsg.Message) Event {
	if msg.Post == nil {
		return Event{Active: false}
	}
	return Event{
		Active: true,
		FullID: msg.Post.ID,
		Rect: Rect{
			X: msg.Post.X,
			Y: msg.Post.Y,
			W: msg.Post.W,
			H: msg.Post.H,
		},
		DPR: msg.DPR,
	}
}

// PixelRect is a clamped, integer, physical-pixel crop rectangle ready to be
// cut out of a captured image.
type PixelRect struct {
	X, Y, W, H int
}

// ErrNonPositiveArea is returned when a rectangle has no pixels left after
// clamping to the image bounds — the post is entirely off-screen.
var ErrNonPositiveArea = fmt.Errorf("cropcoord: clamped rectangle has non-positive area")

// ToPixelRect maps rect (in CSS pixels, screen-relative) into integer pixel
// coordinates within an image of size imgWidth x imgHeight, given the
// display's logical size (logicalWidth x logicalHeight) and its physical
// scale factor. The scale between rect's CSS-pixel space and the acquired
// image is scaleFactor * (imgWidth / (logicalWidth * scaleFactor)), which
// simplifies to imgWidth/logicalWidth — the thumbScale accounts for the
// acquired image being a different resolution than the display reports.
func ToPixelRect(rect Rect, scaleFactor float64, logicalWidth, logicalHeight, imgWidth, imgHeight int) (PixelRect, error) {
	if logicalWidth <= 0 || logicalHeight <= 0 || imgWidth <= 0 || imgHeight <= 0 {
		return PixelRect{}, fmt.Errorf("cropcoord: invalid dimensions")
	}

	thumbScaleX := float64(imgWidth) / (float64(logicalWidth) * scaleFactor)
	thumbScaleY := float64(imgHeight) / (float64(logicalHeight) * scaleFactor)

	cropX := round(rect.X * scaleFactor * thumbScaleX)
	cropY := round(rect.Y * scaleFactor * thumbScaleY)
	cropW := round(rect.W * scaleFactor * thumbScaleX)
	cropH := round(rect.H * scaleFactor * thumbScaleY)

	x0, y0, x1, y1 := clampToImage(cropX, cropY, cropW, cropH, imgWidth, imgHeight)
	if x1 <= x0 || y1 <= y0 {
		return PixelRect{}, ErrNonPositiveArea
	}

	return PixelRect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, nil
}

func clampToImage(x, y, w, h, imgWidth, imgHeight int) (x0, y0, x1, y1 int) {
	x0 = clamp(x, 0, imgWidth)
	y0 = clamp(y, 0, imgHeight)
	x1 = clamp(x+w, 0, imgWidth)
	y1 = clamp(y+h, 0, imgHeight)
	return
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
