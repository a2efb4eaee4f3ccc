// Package locationmsg defines the wire format sent by the in-page observer
// over the sensor socket, and the helpers for deriving stable keys from it.
package locationmsg

import (
	"fmt"
	"regexp"
)

// Message is one JSON frame sent by the in-page observer. Post is nil when
// no content is currently in view.
type Message struct {
	Site          string `json:"site"`
	DPR           float64 `json:"dpr"`
	WindowScreenX int     `json:"windowScreenX"`
	WindowScreenY int     `json:"windowScreenY"`
	Post          *Post   `json:"post"`
}

// Post describes the region of the currently-viewed post in CSS pixels,
// screen-relative (already including any browser window offset).
type Post struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Visibility float64 `json:"visibility"`
}

var baseIDPattern = regexp.MustCompile(`^post_\d+`)

// BaseID extracts the post_<n> prefix from a full post id such as
// "post_42_1700000000000". Returns "" if fullID does not match the
// expected shape.
func BaseID(fullID string) string {
	return baseIDPattern.FindString(fullID)
}

// FrameFilename builds the on-disk filename for the n'th captured frame of
// fullID at the given epoch-millisecond timestamp: the format the uploader
// parses back with ParseFrameFilename.
func FrameFilename(fullID string, counter int, epochMS int64) string {
	return fmt.Sprintf("%s_frame%d_%d.jpg", fullID, counter, epochMS)
}

var frameFilenamePattern = regexp.MustCompile(`^(.+)_frame(\d+)_(\d+)\.jpg$`)

// ParseFrameFilename recovers the full post id, frame counter, and
// epoch-millisecond timestamp from a filename produced by FrameFilename.
// ok is false if name does not match the expected shape.
func ParseFrameFilename(name string) (fullID string, counter int, epochMS int64, ok bool) {
	m := frameFilenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, 0, false
	}
	var c int
	var t int64
	if _, err := fmt.Sscanf(m[2], "%d", &c); err != nil {
		return "", 0, 0, false
	}
	if _, err := fmt.Sscanf(m[3], "%d", &t); err != nil {
		return "", 0, 0, false
	}
	return m[1], c, t, true
}
