// Package control is the detection toggle, stored-post listing, and
// systray icon: a second wails/v2 window (SPEC_FULL.md §4.8 resolves the
// one-window-vs-two ambiguity in favor of a dedicated window) plus a
// getlantern/systray tray icon, grounded on the same
// helixml-helix/for-mac dependency pair the overlay package uses.
package control

import (
	"context"
	"embed"
	"sort"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/lensguard/agent/internal/classifier"
	"github.com/lensguard/agent/internal/education"
	"github.com/lensguard/agent/internal/logging"
	"github.com/lensguard/agent/internal/verdict"
)

var log = logging.L("control")

const listingUpdateEvent = "control:listing"

// DetectionToggle is the subset of session.Manager the control surface
// needs; modeled as an interface so tests don't require a live manager.
type DetectionToggle interface {
	SetDetectionEnabled(enabled bool)
}

// Entry is one row of the control surface's post listing.
type Entry struct {
	BaseID     string           `json:"baseId"`
	Label      verdict.Label    `json:"label"`
	Severity   verdict.Severity `json:"severity"`
	Confidence float64          `json:"confidence"`
	Ready      bool             `json:"ready"`
}

// App is the wails-bound application struct for the control window.
type App struct {
	toggle     DetectionToggle
	classifier *classifier.Client
	framesDir  string
	interval   time.Duration

	mu               sync.Mutex
	ctx              context.Context
	detectionEnabled bool
	knownBaseIDs     map[string]bool
	listing          map[string]Entry

	done chan struct{}
}

// NewApp creates a control app. Call Run to open the window and start
// polling. toggle is typically an *session.Manager.
func NewApp(toggle DetectionToggle, classifierClient *classifier.Client, framesDir string, pollInterval time.Duration) *App {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &App{
		toggle:           toggle,
		classifier:       classifierClient,
		framesDir:        framesDir,
		interval:         pollInterval,
		detectionEnabled: true,
		knownBaseIDs:     make(map[string]bool),
		listing:          make(map[string]Entry),
		done:             make(chan struct{}),
	}
}

// Track registers a base post id for the listing's periodic poll. Wired as
// session.Manager's OnBaseIDSeen callback.
func (a *App) Track(baseID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.knownBaseIDs[baseID] = true
}

// OnStartup is wired as options.App.OnStartup.
func (a *App) OnStartup(ctx context.Context) {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
	go a.pollLoop()
}

// OnShutdown is wired as options.App.OnShutdown.
func (a *App) OnShutdown(ctx context.Context) {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
}

// Quit closes the control window from outside the wails runtime, used by
// the process's signal handler to shut down gracefully.
func (a *App) Quit() {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx != nil {
		runtime.Quit(ctx)
	}
}

func (a *App) pollLoop() {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

func (a *App) refresh() {
	a.mu.Lock()
	ids := make([]string, 0, len(a.knownBaseIDs))
	for id := range a.knownBaseIDs {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		v, err := a.classifier.Analyze(ctx, id)
		cancel()

		var entry Entry
		if err == classifier.ErrNotReady {
			entry = Entry{BaseID: id, Label: verdict.LabelAnalyzing, Ready: false}
		} else if err != nil {
			log.Warn("listing poll failed", "baseId", id, "error", err)
			continue
		} else {
			entry = Entry{
				BaseID:     id,
				Label:      v.Label(),
				Severity:   v.Severity,
				Confidence: v.Confidence,
				Ready:      true,
			}
		}

		a.mu.Lock()
		a.listing[id] = entry
		a.mu.Unlock()
	}

	a.emitListing()
}

func (a *App) emitListing() {
	a.mu.Lock()
	ctx := a.ctx
	entries := make([]Entry, 0, len(a.listing))
	for _, e := range a.listing {
		entries = append(entries, e)
	}
	a.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].BaseID < entries[j].BaseID })

	if ctx != nil {
		runtime.EventsEmit(ctx, listingUpdateEvent, entries)
	}
}

// GetListing is bound for the frontend's initial render.
func (a *App) GetListing() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make([]Entry, 0, len(a.listing))
	for _, e := range a.listing {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].BaseID < entries[j].BaseID })
	return entries
}

// GetFramesDir is bound so the frontend can display the frames directory path.
func (a *App) GetFramesDir() string {
	return a.framesDir
}

// SetDetectionEnabled is bound to the frontend's toggle switch.
func (a *App) SetDetectionEnabled(enabled bool) {
	a.mu.Lock()
	a.detectionEnabled = enabled
	a.mu.Unlock()
	a.toggle.SetDetectionEnabled(enabled)
}

// IsDetectionEnabled is bound for the frontend's initial toggle state.
func (a *App) IsDetectionEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.detectionEnabled
}

// Options builds the wails App options for the control window.
func (a *App) Options(assets embed.FS) options.App {
	return options.App{
		Title:       "LensGuard Control",
		Width:       420,
		Height:      520,
		AlwaysOnTop: false,
		AssetServer: &assetserver.Options{Assets: assets},
		OnStartup:   a.OnStartup,
		OnShutdown:  a.OnShutdown,
		Bind:        []interface{}{a},
	}
}

// Run opens the control window and blocks until it is closed.
func (a *App) Run(assets embed.FS) error {
	opts := a.Options(assets)
	return wails.Run(&opts)
}

// Explain is bound to the frontend's "Explain" button. It runs the one-shot
// education fetch, decoding the classifier's base64 frames so the frontend
// can render them directly as data URLs in the explain modal.
func (a *App) Explain(baseID string) (education.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return education.Fetch(ctx, a.classifier, baseID)
}

// RunTray starts the getlantern/systray icon, blocking until Quit is
// called. Intended to run on its own goroutine alongside the wails window,
// mirroring the teacher's corpus-wide pattern of a tray icon as a thin
// shell around the same toggle the main window exposes.
func (a *App) RunTray(iconData []byte) {
	systray.Run(func() {
		systray.SetIcon(iconData)
		systray.SetTooltip("LensGuard")

		toggleItem := systray.AddMenuItem("Detection enabled", "Pause or resume AI-content detection")
		toggleItem.Check()
		quitItem := systray.AddMenuItem("Quit", "Exit LensGuard")

		go func() {
			for {
				select {
				case <-a.done:
					systray.Quit()
					return
				case <-toggleItem.ClickedCh:
					a.mu.Lock()
					next := !a.detectionEnabled
					a.mu.Unlock()
					a.SetDetectionEnabled(next)
					if next {
						toggleItem.Check()
					} else {
						toggleItem.Uncheck()
					}
				case <-quitItem.ClickedCh:
					systray.Quit()
					return
				}
			}
		}()
	}, func() {})
}
