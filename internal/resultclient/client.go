// Package resultclient dials the classifier's per-post result stream and
// delivers a single verdict, mirroring the teacher's
// internal/websocket.Client dial/read-pump structure but simplified: the
// classifier closes the stream after one payload per post, so there is no
// reconnect loop, only a single dial and a single read.
package resultclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/lensguard/agent/internal/logging"
	"github.com/lensguard/agent/internal/verdict"
)

var log = logging.L("resultclient")

// Client dials ws(s)://<baseURL>/ws/analysis/<base-id> subscriptions.
type Client struct {
	baseURL string
	dialer  websocket.Dialer
}

// New creates a client against the classifier's websocket base URL, e.g.
// "ws://127.0.0.1:8000".
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, dialer: websocket.Dialer{}}
}

// Subscribe opens a push subscription for baseID and returns a channel
// that receives exactly one verdict before closing, or closes without a
// value if the stream ends first (connection error, classifier closing
// without a payload, or ctx cancellation). The caller closing ctx is the
// only way to cancel early — per contract only one subscription is open at
// a time, enforced by the caller (internal/session.Manager) closing the
// previous session before arming a new one.
func (c *Client) Subscribe(ctx context.Context, baseID string) (<-chan verdict.Verdict, error) {
	url := fmt.Sprintf("%s/ws/analysis/%s", c.baseURL, baseID)

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("resultclient: dial failed: %w", err)
	}

	ch := make(chan verdict.Verdict, 1)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(ch)
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("result subscription closed without a payload", "baseId", baseID, "error", err)
			return
		}

		var payload resultPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn("malformed verdict payload", "baseId", baseID, "error", err)
			return
		}

		v := verdict.Verdict{
			PostID:     baseID,
			IsAI:       payload.IsAI,
			Confidence: payload.Confidence,
			Severity:   verdict.Severity(payload.Severity),
			Reasons:    payload.Reasons,
		}

		select {
		case ch <- v:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

type resultPayload struct {
	IsAI       bool     `json:"is_ai"`
	Confidence float64  `json:"confidence"`
	Severity   string   `json:"severity"`
	Reasons    []string `json:"reasons"`
}
