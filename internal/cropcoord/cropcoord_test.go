package cropcoord

import (
	"testing"

	"github.com/lensguard/agent/internal/locationmsg"
)

func TestTranslateNilPostClears(t *testing.T) {
	ev := Translate(locationmsg.Message{Site: "example.social", DPR: 2})
	if ev.Active {
		t.Fatal("expected inactive event for nil post")
	}
}

func TestTranslateActivePost(t *testing.T) {
	msg := locationmsg.Message{
		DPR: 2,
		Post: &locationmsg.Post{
			ID: "post_1_1000",
			X:  100, Y: 200, W: 300, H: 400,
			Visibility: 0.9,
		},
	}
	ev := Translate(msg)
	if !ev.Active {
		t.Fatal("expected active event")
	}
	if ev.FullID != "post_1_1000" {
		t.Errorf("FullID = %q, want post_1_1000", ev.FullID)
	}
	if ev.Rect != (Rect{X: 100, Y: 200, W: 300, H: 400}) {
		t.Errorf("Rect = %+v, unexpected", ev.Rect)
	}
	if ev.DPR != 2 {
		t.Errorf("DPR = %v, want 2", ev.DPR)
	}
}

func TestToPixelRectSimpleScale(t *testing.T) {
	// Logical display 1000x800 at 2x scale, image acquired at matching
	// physical resolution 2000x1600: thumbScale is 1, so crop just scales
	// by the display factor.
	rect := Rect{X: 10, Y: 20, W: 100, H: 50}
	got, err := ToPixelRect(rect, 2, 1000, 800, 2000, 1600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := PixelRect{X: 20, Y: 40, W: 200, H: 100}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestToPixelRectClampsNegativeOrigin(t *testing.T) {
	rect := Rect{X: -50, Y: -10, W: 200, H: 100}
	got, err := ToPixelRect(rect, 1, 1000, 800, 1000, 800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.X != 0 || got.Y != 0 {
		t.Errorf("expected origin clamped to 0,0, got %+v", got)
	}
	if got.W <= 0 || got.H <= 0 {
		t.Errorf("expected positive remaining area, got %+v", got)
	}
}

func TestToPixelRectFailsWhenFullyOffscreen(t *testing.T) {
	rect := Rect{X: -500, Y: -500, W: 100, H: 100}
	_, err := ToPixelRect(rect, 1, 1000, 800, 1000, 800)
	if err != ErrNonPositiveArea {
		t.Fatalf("expected ErrNonPositiveArea, got %v", err)
	}
}

func TestToPixelRectFailsOnInvalidDimensions(t *testing.T) {
	rect := Rect{X: 0, Y: 0, W: 10, H: 10}
	if _, err := ToPixelRect(rect, 1, 0, 800, 1000, 800); err == nil {
		t.Fatal("expected error for zero logical width")
	}
}

func TestToPixelRectBeyondFarEdgeClamps(t *testing.T) {
	rect := Rect{X: 950, Y: 750, W: 200, H: 200}
	got, err := ToPixelRect(rect, 1, 1000, 800, 1000, 800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.X+got.W != 1000 || got.Y+got.H != 800 {
		t.Errorf("expected clamp to image far edge, got %+v", got)
	}
}
