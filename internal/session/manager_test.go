package session

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/lensguard/agent/internal/capture"
	"github.com/lensguard/agent/internal/cropcoord"
	"github.com/lensguard/agent/internal/verdict"
)

// slowCapturer blocks inside Capture until released, used to land a capture
// squarely in flight while the manager tears the session down underneath it.
type slowCapturer struct {
	release chan struct{}
	closed  bool
}

func newSlowCapturer() *slowCapturer {
	return &slowCapturer{release: make(chan struct{})}
}

func (c *slowCapturer) Capture() (*image.RGBA, error) {
	<-c.release
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

func (c *slowCapturer) Bounds() (int, int, float64, error) { return 100, 100, 1, nil }

func (c *slowCapturer) Close() error {
	c.closed = true
	return nil
}

func newManagerForTest(cfg Config, capturerFn CapturerFactory) (*Manager, *fakeOverlay, *fakeFrameSink, *fakeSubscriber) {
	overlay := &fakeOverlay{}
	frames := &fakeFrameSink{}
	sub := newFakeSubscriber()
	cache := verdict.NewCache(time.Minute)
	m := NewManager(cfg, capturerFn, cache, sub, overlay, frames)
	return m, overlay, frames, sub
}

// trackingFrameSink records which full post ids had a frame written, so a
// test can distinguish "the torn-down post's frame was discarded" from "no
// session anywhere produced a frame yet".
type trackingFrameSink struct {
	mu      sync.Mutex
	written []string
}

func (f *trackingFrameSink) WriteFrame(fullID string, counter int, frame *capture.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, fullID)
	return nil
}

func (f *trackingFrameSink) wroteFor(fullID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.written {
		if id == fullID {
			return true
		}
	}
	return false
}

func TestManagerTearsDownPreviousSessionOnQuickScrollAway(t *testing.T) {
	cfg := testConfig()
	m, _, _, _ := newManagerForTest(cfg, func() (capture.ScreenCapturer, error) {
		return fakeCapturer{}, nil
	})

	m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_1_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})
	time.Sleep(5 * time.Millisecond)
	first := m.current

	// Scroll away to a different post before the first one ever settles.
	m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_2_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})

	if first.State() != StateTornDown {
		t.Fatalf("expected first session torn down, got %v", first.State())
	}
	if m.current == first {
		t.Fatal("expected manager to have switched to a new session")
	}
	if m.current.baseID != "post_2" {
		t.Fatalf("expected current session for post_2, got %q", m.current.baseID)
	}
}

func TestManagerSameBaseIDIsNoOp(t *testing.T) {
	cfg := testConfig()
	m, _, _, _ := newManagerForTest(cfg, func() (capture.ScreenCapturer, error) {
		return fakeCapturer{}, nil
	})

	m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_1_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})
	first := m.current

	m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_1_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})

	if m.current != first {
		t.Fatal("expected the same base id to leave the current session untouched")
	}
}

func TestManagerClearTearsDownAndHidesOverlay(t *testing.T) {
	cfg := testConfig()
	m, overlay, _, _ := newManagerForTest(cfg, func() (capture.ScreenCapturer, error) {
		return fakeCapturer{}, nil
	})

	m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_1_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})
	cur := m.current

	m.HandleEvent(cropcoord.Event{Active: false})

	if cur.State() != StateTornDown {
		t.Fatalf("expected session torn down on clear, got %v", cur.State())
	}
	if m.current != nil {
		t.Fatal("expected no current session after clear")
	}
	if overlay.last().Visible {
		t.Fatal("expected overlay hidden after clear")
	}
}

func TestManagerSetDetectionDisabledTearsDownAndBlocksArming(t *testing.T) {
	cfg := testConfig()
	m, _, _, _ := newManagerForTest(cfg, func() (capture.ScreenCapturer, error) {
		return fakeCapturer{}, nil
	})

	m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_1_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})
	cur := m.current

	m.SetDetectionEnabled(false)

	if cur.State() != StateTornDown {
		t.Fatalf("expected running session torn down when detection disabled, got %v", cur.State())
	}
	if m.current != nil {
		t.Fatal("expected no current session while detection disabled")
	}

	m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_2_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})
	if m.current != nil {
		t.Fatal("expected arming to stay blocked while detection is disabled")
	}

	m.SetDetectionEnabled(true)
	m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_2_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})
	if m.current == nil {
		t.Fatal("expected arming to resume once detection is re-enabled")
	}
}

// TestManagerDiscardsInFlightCaptureOnConcurrentTeardown reproduces the
// scrolled-away-mid-capture race from spec: a capture already underway when
// a new post is handed an active event must finish but must not land a
// frame for the post that is no longer current.
func TestManagerDiscardsInFlightCaptureOnConcurrentTeardown(t *testing.T) {
	cfg := Config{
		SettleDelay:       time.Millisecond,
		CaptureInterval:   time.Hour,
		DetectionThrottle: 0,
		Quality:           85,
	}

	slow := newSlowCapturer()
	overlay := &fakeOverlay{}
	frames := &trackingFrameSink{}
	sub := newFakeSubscriber()
	cache := verdict.NewCache(time.Minute)
	m := NewManager(cfg, func() (capture.ScreenCapturer, error) { return slow, nil }, cache, sub, overlay, frames)

	m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_1_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})

	// Wait for the session to settle into its capture tick, which is now
	// blocked inside slow.Capture().
	deadline := time.After(time.Second)
	for m.current.State() != StateCapturing {
		select {
		case <-deadline:
			t.Fatal("session never reached capturing state")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	first := m.current

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Scroll to a new post while the first capture is still in flight.
		m.HandleEvent(cropcoord.Event{Active: true, FullID: "post_2_1000", Rect: cropcoord.Rect{W: 10, H: 10}, DPR: 1})
	}()

	// Give HandleEvent a moment to call Stop and block on wg.Wait before
	// releasing the in-flight capture.
	time.Sleep(20 * time.Millisecond)
	close(slow.release)
	wg.Wait()

	if first.State() != StateTornDown {
		t.Fatalf("expected torn-down first session, got %v", first.State())
	}

	if frames.wroteFor("post_1_1000") {
		t.Fatal("expected the in-flight capture for the torn-down post to be discarded, but it was written")
	}
}
