// Package session implements the per-post state machine: Idle, Arming,
// Capturing, Resolved, Torn-down. One Session goroutine runs per active
// base post id, modeled on the teacher's remote/desktop.Session lifecycle
// (private mutex-guarded struct, sync.Once-guarded Stop, a done channel,
// ordered teardown) but re-targeted from a WebRTC video session onto the
// capture/subscribe/render loop this domain needs.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lensguard/agent/internal/capture"
	"github.com/lensguard/agent/internal/cropcoord"
	"github.com/lensguard/agent/internal/logging"
	"github.com/lensguard/agent/internal/verdict"
)

var log = logging.L("session")

// State is one of the five states a Session moves through.
type State int

const (
	StateIdle State = iota
	StateArming
	StateCapturing
	StateResolved
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArming:
		return "arming"
	case StateCapturing:
		return "capturing"
	case StateResolved:
		return "resolved"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// OverlayState is the single record the overlay renders, replaced wholesale
// on every update.
type OverlayState struct {
	Visible      bool
	PostID       string
	Rect         cropcoord.Rect
	Label        verdict.Label
	Confidence   float64
	ShowDebugBox bool
	// Expanded is overlay-local UI state (compact badge vs. expanded
	// confidence row + Explain button) toggled by the badge itself; the
	// state machine never sets it, so overlay.App preserves whatever the
	// frontend last asked for across session-driven Render pushes.
	Expanded bool
}

// OverlaySink receives overlay state updates. Implemented by internal/overlay.
type OverlaySink interface {
	Render(OverlayState)
}

// Subscriber opens a push subscription for a base post id and returns a
// channel delivering at most one verdict before closing, mirroring the
// classifier's single-shot-per-post contract.
type Subscriber interface {
	Subscribe(ctx context.Context, baseID string) (<-chan verdict.Verdict, error)
}

// FrameSink persists a captured frame under the naming convention the
// uploader expects, using the frame counter the session passes in.
type FrameSink interface {
	WriteFrame(fullID string, counter int, frame *capture.Frame) error
}

// Config holds the session's timing constants, validated/clamped by
// internal/config before being passed down here.
type Config struct {
	SettleDelay       time.Duration
	CaptureInterval   time.Duration
	DetectionThrottle time.Duration
	Quality           int
}

// Session runs the state machine for one base post id.
type Session struct {
	cfg        Config
	fullID     string
	baseID     string
	rect       cropcoord.Rect
	dpr        float64
	capturer   capture.ScreenCapturer
	cache      *verdict.Cache
	subscriber Subscriber
	overlay    OverlaySink
	frames     FrameSink

	mu           sync.Mutex
	state        State
	frameCounter int
	lastAttempt  time.Time

	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	subCtx     context.Context
	subCancel  context.CancelFunc
}

// New creates a session for fullID/baseID but does not start it; call Run
// in its own goroutine.
func New(cfg Config, fullID, baseID string, rect cropcoord.Rect, dpr float64, capturer capture.ScreenCapturer, cache *verdict.Cache, subscriber Subscriber, overlay OverlaySink, frames FrameSink) *Session {
	return &Session{
		cfg:        cfg,
		fullID:     fullID,
		baseID:     baseID,
		rect:       rect,
		dpr:        dpr,
		capturer:   capturer,
		cache:      cache,
		subscriber: subscriber,
		overlay:    overlay,
		frames:     frames,
		state:      StateIdle,
		done:       make(chan struct{}),
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop tears the session down: cancels any pending settle timer, stops the
// capture loop, closes the subscription. Safe to call multiple times or
// concurrently with Run.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.setState(StateTornDown)
		close(s.done)
	})
	s.wg.Wait()
	if s.subCancel != nil {
		s.subCancel()
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the state machine until Stop is called or a verdict resolves
// the post. It blocks; callers run it in its own goroutine.
func (s *Session) Run() {
	s.wg.Add(1)
	defer s.wg.Done()

	plog := logging.WithPost(log, s.fullID, s.baseID)

	if cached, ok := s.cache.Get(s.fullID); ok {
		plog.Info("verdict cache hit on arm, skipping capture", "label", cached.Label())
		s.resolve(plog, cached)
		return
	}

	s.arm(plog)

	settleTimer := time.NewTimer(s.cfg.SettleDelay)
	defer settleTimer.Stop()

	settleC := settleTimer.C
	var captureC <-chan time.Time
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	verdictCh, err := s.openSubscription(plog)
	if err != nil {
		plog.Warn("failed to open result subscription", "error", err)
	}

	for {
		select {
		case <-s.done:
			return

		case <-settleC:
			settleC = nil
			if cached, ok := s.cache.Get(s.fullID); ok {
				s.resolve(plog, cached)
				return
			}
			s.setState(StateCapturing)
			s.frameCounter = 0
			plog.Info("settled, entering capture loop")
			s.captureTick(plog)
			ticker = time.NewTicker(s.cfg.CaptureInterval)
			captureC = ticker.C

		case <-captureC:
			if cached, ok := s.cache.Get(s.fullID); ok {
				s.resolve(plog, cached)
				return
			}
			s.captureTick(plog)

		case v, ok := <-verdictCh:
			if !ok {
				verdictCh = nil
				continue
			}
			s.cache.Put(s.fullID, v)
			s.resolve(plog, v)
			return
		}
	}
}

func (s *Session) arm(plog *slog.Logger) {
	s.setState(StateArming)
	s.overlay.Render(OverlayState{
		Visible: true,
		PostID:  s.fullID,
		Rect:    s.rect,
		Label:   verdict.LabelAnalyzing,
	})
}

func (s *Session) openSubscription(plog *slog.Logger) (<-chan verdict.Verdict, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s.subCtx, s.subCancel = ctx, cancel
	return s.subscriber.Subscribe(ctx, s.baseID)
}

func (s *Session) resolve(plog *slog.Logger, v verdict.Verdict) {
	s.setState(StateResolved)
	if s.subCancel != nil {
		s.subCancel()
	}
	s.overlay.Render(OverlayState{
		Visible:    true,
		PostID:     s.fullID,
		Rect:       s.rect,
		Label:      v.Label(),
		Confidence: v.Confidence,
	})
	plog.Info("resolved", "label", v.Label(), "confidence", v.Confidence)
}

func (s *Session) captureTick(plog *slog.Logger) {
	if !s.lastAttempt.IsZero() && time.Since(s.lastAttempt) < s.cfg.DetectionThrottle {
		return
	}
	s.lastAttempt = time.Now()

	frame, err := capture.CaptureCrop(s.capturer, s.rect, s.dpr, s.cfg.Quality)
	if err != nil {
		plog.Warn("capture failed, will retry next tick", "error", err)
		return
	}
	if frame == nil {
		plog.Debug("no frame available this tick")
		return
	}

	select {
	case <-s.done:
		// Teardown landed while this capture was in flight: the JPEG is
		// allowed to finish but the post it belongs to is no longer active,
		// so it is discarded rather than written.
		plog.Debug("discarding frame from capture in flight at teardown")
		return
	default:
	}

	s.frameCounter++
	if err := s.frames.WriteFrame(s.fullID, s.frameCounter, frame); err != nil {
		plog.Warn("failed to write frame", "error", err)
	}
}
