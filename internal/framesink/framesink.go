// Package framesink implements session.FrameSink by writing each captured
// crop to the frames directory the uploader watches, named per
// internal/locationmsg.FrameFilename so the uploader's filename parser
// recovers the full post id, counter, and capture time.
package framesink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lensguard/agent/internal/capture"
	"github.com/lensguard/agent/internal/locationmsg"
	"github.com/lensguard/agent/internal/logging"
)

var log = logging.L("framesink")

// Disk writes frames under a single directory.
type Disk struct {
	dir string
}

// New creates a Disk frame sink rooted at dir, creating it if necessary.
func New(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("framesink: failed to create frames dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// WriteFrame implements session.FrameSink.
func (d *Disk) WriteFrame(fullID string, counter int, frame *capture.Frame) error {
	name := locationmsg.FrameFilename(fullID, counter, time.Now().UnixMilli())
	path := filepath.Join(d.dir, name)

	if err := os.WriteFile(path, frame.JPEG, 0o644); err != nil {
		return fmt.Errorf("framesink: failed to write %s: %w", name, err)
	}
	log.Debug("frame written", "file", name, "bytes", len(frame.JPEG))
	return nil
}
