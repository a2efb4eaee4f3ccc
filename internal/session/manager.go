package session

import (
	"sync"

	"github.com/lensguard/agent/internal/capture"
	"github.com/lensguard/agent/internal/cropcoord"
	"github.com/lensguard/agent/internal/locationmsg"
	"github.com/lensguard/agent/internal/verdict"
)

// CapturerFactory creates a fresh screen capturer for a new session. A
// factory (rather than a shared instance) lets the manager hand each
// session its own capturer lifecycle, closed on teardown.
type CapturerFactory func() (capture.ScreenCapturer, error)

// Manager owns the single active Session and the verdict cache, and
// arbitrates location events from the crop coordinator against the
// detection-enabled switch exposed by the control surface.
type Manager struct {
	cfg        Config
	capturerFn CapturerFactory
	cache      *verdict.Cache
	subscriber Subscriber
	overlay    OverlaySink
	frames     FrameSink

	mu               sync.Mutex
	current          *Session
	currentCapturer  capture.ScreenCapturer
	detectionEnabled bool
	onBaseIDSeen     func(baseID string)
}

// SetOnBaseIDSeen registers a callback invoked whenever the manager arms a
// session for a base post id, letting the control surface build its
// polling registry without the session package knowing anything about it.
func (m *Manager) SetOnBaseIDSeen(fn func(baseID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBaseIDSeen = fn
}

// NewManager creates a session manager. Detection starts enabled, matching
// the control surface's default "on" switch.
func NewManager(cfg Config, capturerFn CapturerFactory, cache *verdict.Cache, subscriber Subscriber, overlay OverlaySink, frames FrameSink) *Manager {
	return &Manager{
		cfg:              cfg,
		capturerFn:       capturerFn,
		cache:            cache,
		subscriber:       subscriber,
		overlay:          overlay,
		frames:           frames,
		detectionEnabled: true,
	}
}

// SetDetectionEnabled toggles the master switch. Disabling it tears down
// any active session and blocks new Arming transitions until re-enabled.
func (m *Manager) SetDetectionEnabled(enabled bool) {
	m.mu.Lock()
	m.detectionEnabled = enabled
	cur := m.current
	if !enabled {
		m.current = nil
	}
	m.mu.Unlock()

	if !enabled && cur != nil {
		cur.Stop()
		m.closeCapturer()
		m.overlay.Render(OverlayState{Visible: false})
	}
}

// HandleEvent applies a crop-coordinator event: an inactive event clears
// the current post; an active event for a new base id tears down the
// current session and starts a new one; an active event for the same base
// id is a no-op (the session already owns that lifecycle).
func (m *Manager) HandleEvent(ev cropcoord.Event) {
	if !ev.Active {
		m.clear()
		return
	}

	baseID := locationmsg.BaseID(ev.FullID)

	m.mu.Lock()
	if !m.detectionEnabled {
		m.mu.Unlock()
		return
	}
	if m.current != nil && m.current.baseID == baseID {
		m.mu.Unlock()
		return
	}
	prev := m.current
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
		m.closeCapturer()
	}

	capturer, err := m.capturerFn()
	if err != nil {
		log.Warn("failed to create screen capturer for new session", "error", err)
		return
	}

	sess := New(m.cfg, ev.FullID, baseID, ev.Rect, ev.DPR, capturer, m.cache, m.subscriber, m.overlay, m.frames)

	m.mu.Lock()
	m.current = sess
	m.currentCapturer = capturer
	onBaseIDSeen := m.onBaseIDSeen
	m.mu.Unlock()

	if onBaseIDSeen != nil {
		onBaseIDSeen(baseID)
	}

	go sess.Run()
}

// clear tears down the current session and hides the overlay, modeling the
// sensor socket's disconnect reset and the "active-post-cleared" signal.
func (m *Manager) clear() {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()

	if cur == nil {
		return
	}
	cur.Stop()
	m.closeCapturer()
	m.overlay.Render(OverlayState{Visible: false})
}

func (m *Manager) closeCapturer() {
	m.mu.Lock()
	c := m.currentCapturer
	m.currentCapturer = nil
	m.mu.Unlock()

	if c != nil {
		if err := c.Close(); err != nil {
			log.Warn("failed to close screen capturer", "error", err)
		}
	}
}

// Shutdown tears down any active session. Intended for process shutdown.
func (m *Manager) Shutdown() {
	m.clear()
}
