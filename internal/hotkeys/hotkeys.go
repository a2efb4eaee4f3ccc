// Package hotkeys implements the overlay's debug affordances as
// window-scoped wails key bindings rather than OS-global hotkeys: no
// example repo in the corpus registers a global hotkey, and
// golang.design/x/hotkey never appears, so this package deliberately reuses
// the one GUI stack already wired (spec.md §4.10 / SPEC_FULL.md §4.10).
// Each debug screenshot is written as its own JPEG file in the debug
// directory, and a manifest line per dump is appended through the teacher's
// rotating file writer (internal/logging.RotatingWriter), so the manifest is
// size-bounded; the screenshot files themselves are never rotated or pruned.
package hotkeys

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/lensguard/agent/internal/capture"
	"github.com/lensguard/agent/internal/logging"
)

var log = logging.L("hotkeys")

// DebugBoxToggle is the subset of overlay.App the screenshot/debug-box
// hotkeys drive.
type DebugBoxToggle interface {
	SetDebugBox(show bool)
}

// ScreenshotDumper captures the current full screen on demand, for the
// debug screenshot hotkey. Implemented by any capture.ScreenCapturer.
type ScreenshotDumper interface {
	Capture() (*image.RGBA, error)
}

// Handler binds the two debug key events the overlay window's frontend
// forwards: Ctrl/Cmd+Shift+S (dump a screenshot) and Ctrl/Cmd+Shift+D
// (toggle the debug crop-box outline).
type Handler struct {
	toggle   DebugBoxToggle
	dumper   ScreenshotDumper
	debugDir string
	rotating *logging.RotatingWriter
	debugOn  bool
}

// New creates a hotkey handler. debugDir holds dumped screenshots; a
// manifest of dump metadata is appended to manifest.log via a rotating
// writer capped at maxManifestMB with up to maxManifestBackups kept.
func New(toggle DebugBoxToggle, dumper ScreenshotDumper, debugDir string, maxManifestMB, maxManifestBackups int) (*Handler, error) {
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		return nil, fmt.Errorf("hotkeys: failed to create debug dir: %w", err)
	}
	manifestPath := filepath.Join(debugDir, "manifest.log")
	rw, err := logging.NewRotatingWriter(manifestPath, maxManifestMB, maxManifestBackups)
	if err != nil {
		return nil, fmt.Errorf("hotkeys: failed to open debug manifest: %w", err)
	}
	return &Handler{
		toggle:   toggle,
		dumper:   dumper,
		debugDir: debugDir,
		rotating: rw,
	}, nil
}

// Close releases the manifest writer.
func (h *Handler) Close() error {
	return h.rotating.Close()
}

// HandleToggleDebugBox is bound as the Ctrl/Cmd+Shift+D key event callback.
func (h *Handler) HandleToggleDebugBox() {
	h.debugOn = !h.debugOn
	h.toggle.SetDebugBox(h.debugOn)
	log.Debug("debug box hotkey fired", "show", h.debugOn)
}

// HandleDumpScreenshot is bound as the Ctrl/Cmd+Shift+S key event callback.
// It captures the current full screen, JPEG-encodes it, writes it under
// debugDir, and appends a manifest line recording what was dumped.
func (h *Handler) HandleDumpScreenshot() error {
	img, err := h.dumper.Capture()
	if err != nil {
		return fmt.Errorf("hotkeys: screenshot capture failed: %w", err)
	}

	jpegBytes, err := capture.EncodeJPEG(img, 90)
	if err != nil {
		return fmt.Errorf("hotkeys: screenshot encode failed: %w", err)
	}

	name := fmt.Sprintf("debug_%d.jpg", time.Now().UnixNano())
	path := filepath.Join(h.debugDir, name)

	if err := os.WriteFile(path, jpegBytes, 0o644); err != nil {
		return fmt.Errorf("hotkeys: failed to write screenshot: %w", err)
	}

	entry := manifestEntry{File: name, Bytes: len(jpegBytes), Bounds: img.Bounds().Size().String()}
	line, _ := json.Marshal(entry)
	h.rotating.Write(append(line, '\n'))

	log.Info("debug screenshot dumped", "file", name, "bytes", len(jpegBytes))
	return nil
}

type manifestEntry struct {
	File   string `json:"file"`
	Bytes  int    `json:"bytes"`
	Bounds string `json:"bounds"`
}
