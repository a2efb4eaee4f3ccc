// Package overlay is the frameless, always-on-top desktop window that
// renders the live detection state over a post's location. Grounded on
// helixml-helix/for-mac's go.mod — the one repo in the corpus that ships a
// native desktop GUI shell, via github.com/wailsapp/wails/v2 and
// github.com/getlantern/systray. The webview itself renders the crop
// rectangle and label; this package only owns the Go-side state and its
// translation into wails runtime events.
package overlay

import (
	"context"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/lensguard/agent/internal/education"
	"github.com/lensguard/agent/internal/locationmsg"
	"github.com/lensguard/agent/internal/logging"
	"github.com/lensguard/agent/internal/session"
)

var log = logging.L("overlay")

// updateEvent is the wails runtime event name the embedded frontend
// subscribes to for overlay state pushes.
const updateEvent = "overlay:update"

// App is the wails-bound application struct for the overlay window. It
// implements session.OverlaySink so the session manager can drive it
// directly.
type App struct {
	educator education.Fetcher

	mu      sync.Mutex
	ctx     context.Context
	current session.OverlayState
}

// NewApp creates an unstarted overlay app. educator serves the badge's
// Explain button; call Run to open the window.
func NewApp(educator education.Fetcher) *App {
	return &App{educator: educator}
}

// OnStartup is wired as options.App.OnStartup; wails calls it once the
// runtime context is ready, which is also the point Render's EventsEmit
// calls become deliverable.
func (a *App) OnStartup(ctx context.Context) {
	a.mu.Lock()
	a.ctx = ctx
	current := a.current
	a.mu.Unlock()
	// Replay whatever state had already arrived before the window finished
	// starting up, so a slow webview load never misses the current crop.
	runtime.EventsEmit(ctx, updateEvent, current)
}

// Render implements session.OverlaySink. It is called from the session's
// goroutine, never from the webview, so it must not block on the UI. The
// session has no notion of expand/collapse, so the badge's current Expanded
// flag is carried forward across session-driven pushes instead of being
// reset to false on every verdict/arm update.
func (a *App) Render(state session.OverlayState) {
	a.mu.Lock()
	if state.PostID == a.current.PostID {
		state.Expanded = a.current.Expanded
	}
	a.current = state
	ctx := a.ctx
	a.mu.Unlock()

	if ctx == nil {
		// Window hasn't started yet; OnStartup will replay the latest state.
		return
	}
	runtime.EventsEmit(ctx, updateEvent, state)
}

// Quit closes the overlay window from outside the wails runtime, used by
// the process's signal handler to shut down gracefully.
func (a *App) Quit() {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx != nil {
		runtime.Quit(ctx)
	}
}

// GetState is bound for the frontend to call on load, to avoid depending
// solely on the EventsEmit push for the window's initial paint.
func (a *App) GetState() session.OverlayState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// SetDebugBox shows or hides the debug crop-box outline. It is driven by
// internal/hotkeys.Handler, whose Ctrl/Cmd+Shift+D callback the frontend
// invokes.
func (a *App) SetDebugBox(show bool) {
	a.mu.Lock()
	a.current.ShowDebugBox = show
	state := a.current
	ctx := a.ctx
	a.mu.Unlock()
	log.Debug("debug box toggled", "show", show)
	if ctx != nil {
		runtime.EventsEmit(ctx, updateEvent, state)
	}
}

// ToggleExpand is bound to the badge's click handler: it flips between the
// compact (label + confidence chip) and expanded (confidence row + Explain
// button) badge modes per spec.md §4.7, and tells the wails runtime to stop
// (or resume) forwarding mouse events for the window for the duration of
// the interaction, since the overlay is click-through by default.
func (a *App) ToggleExpand() session.OverlayState {
	a.mu.Lock()
	a.current.Expanded = !a.current.Expanded
	state := a.current
	ctx := a.ctx
	a.mu.Unlock()

	if ctx != nil {
		runtime.WindowSetIgnoreMouseEvents(ctx, !state.Expanded)
		runtime.EventsEmit(ctx, updateEvent, state)
	}
	return state
}

// Explain is bound to the expanded badge's "Explain" button. It runs the
// one-shot education fetch for whichever post is currently displayed and
// returns the decoded result for the frontend to render modally.
func (a *App) Explain() (education.Result, error) {
	a.mu.Lock()
	fullID := a.current.PostID
	a.mu.Unlock()

	if fullID == "" {
		return education.Result{}, fmt.Errorf("overlay: no post currently displayed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return education.Fetch(ctx, a.educator, locationmsg.BaseID(fullID))
}

// Options builds the wails App options for a frameless, transparent,
// always-on-top overlay window. The window is click-through by default (see
// ToggleExpand for the interaction that temporarily stops that); wails v2
// has no static cross-platform click-through flag, so the embedded
// frontend's CSS starts pointer-events: none and ToggleExpand flips the
// runtime's own mouse-event forwarding for the duration of an expanded
// badge. extraBind lets the hotkeys handler's debug key callbacks share
// this window's wails binding without overlay importing internal/hotkeys.
func (a *App) Options(assets embed.FS, extraBind ...interface{}) options.App {
	return options.App{
		Title:            "LensGuard Overlay",
		Width:            1,
		Height:           1,
		Frameless:        true,
		AlwaysOnTop:      true,
		DisableResize:    true,
		BackgroundColour: &options.RGBA{R: 0, G: 0, B: 0, A: 0},
		AssetServer:      &assetserver.Options{Assets: assets},
		OnStartup:        a.OnStartup,
		Bind:             append([]interface{}{a}, extraBind...),
	}
}

// Run opens the overlay window and blocks until it is closed. Intended to
// be called on the main goroutine by cmd/lensguard-agent, same as the
// teacher's single wails.Run entry point.
func (a *App) Run(assets embed.FS, extraBind ...interface{}) error {
	opts := a.Options(assets, extraBind...)
	return wails.Run(&opts)
}
