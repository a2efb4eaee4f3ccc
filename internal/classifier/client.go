// Package classifier is the HTTP client for the external classifier
// service's REST surface: polling GET /analyze/<base-id> for the control
// surface's listing, and the one-shot GET /educate/<base-id> fetch. The
// at-most-once POST upload lives in internal/uploader, not here, since
// retrying a POST would violate the upload's at-most-once contract;
// httputil.Do's retry-with-backoff is reserved for these idempotent GETs.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lensguard/agent/internal/httputil"
	"github.com/lensguard/agent/internal/logging"
	"github.com/lensguard/agent/internal/verdict"
)

var log = logging.L("classifier")

// Client talks to the classifier's REST endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	retry   httputil.RetryConfig
}

// New creates a classifier client against baseURL, e.g. "http://127.0.0.1:8000".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		retry:   httputil.DefaultRetryConfig(),
	}
}

// ErrNotReady is returned by Analyze when the classifier has no verdict
// for baseID yet (HTTP 404).
var ErrNotReady = fmt.Errorf("classifier: verdict not ready")

// Analyze fetches the current verdict for baseID, used by the control
// surface's periodic listing refresh.
func (c *Client) Analyze(ctx context.Context, baseID string) (verdict.Verdict, error) {
	url := fmt.Sprintf("%s/analyze/%s", c.baseURL, baseID)

	resp, err := httputil.Do(ctx, c.http, http.MethodGet, url, nil, nil, c.retry)
	if err != nil {
		return verdict.Verdict{}, fmt.Errorf("classifier: analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return verdict.Verdict{}, ErrNotReady
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("analyze poll rejected", "baseId", baseID, "status", resp.StatusCode)
		return verdict.Verdict{}, fmt.Errorf("classifier: analyze returned status %d", resp.StatusCode)
	}

	var payload struct {
		IsAI       bool     `json:"is_ai"`
		Confidence float64  `json:"confidence"`
		Severity   string   `json:"severity"`
		Reasons    []string `json:"reasons"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return verdict.Verdict{}, fmt.Errorf("classifier: failed to decode analyze response: %w", err)
	}

	return verdict.Verdict{
		PostID:     baseID,
		IsAI:       payload.IsAI,
		Confidence: payload.Confidence,
		Severity:   verdict.Severity(payload.Severity),
		Reasons:    payload.Reasons,
	}, nil
}

// Education is the one-shot payload returned by GET /educate/<base-id>.
type Education struct {
	Frames           []string `json:"frames"` // base64 JPEG
	Explanation      string   `json:"explanation"`
	Indicators       []string `json:"indicators"`
	DetectionSummary struct {
		IsAI       bool    `json:"is_ai"`
		Confidence float64 `json:"confidence"`
		Severity   string  `json:"severity"`
	} `json:"detection_summary"`
}

// Educate issues the one-shot education request for the "Explain" button.
// Errors surface directly to the caller; no caching beyond what the
// control/overlay components keep for the current modal.
func (c *Client) Educate(ctx context.Context, baseID string) (Education, error) {
	url := fmt.Sprintf("%s/educate/%s", c.baseURL, baseID)

	resp, err := httputil.Do(ctx, c.http, http.MethodGet, url, nil, nil, c.retry)
	if err != nil {
		return Education{}, fmt.Errorf("classifier: educate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("educate request rejected", "baseId", baseID, "status", resp.StatusCode)
		return Education{}, fmt.Errorf("classifier: educate returned status %d", resp.StatusCode)
	}

	var edu Education
	if err := json.NewDecoder(resp.Body).Decode(&edu); err != nil {
		return Education{}, fmt.Errorf("classifier: failed to decode educate response: %w", err)
	}
	log.Debug("education fetched", "baseId", baseID, "frames", len(edu.Frames))
	return edu, nil
}
