// Package education is the one-shot "Explain" fetch: it decodes the
// classifier's base64 JPEG frames into displayable images and hands the
// explanation/indicators straight through, per spec.md §4.9. No caching —
// each button press is a fresh request.
package education

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/lensguard/agent/internal/classifier"
)

// Result is the decoded, display-ready education payload. JSON tags matter
// here: this struct crosses into the embedded wails frontend as the modal's
// view model, and encoding/json base64-encodes the raw frame bytes for free.
type Result struct {
	Frames           [][]byte         `json:"frames"` // decoded JPEG bytes, re-encoded as base64 by encoding/json
	Explanation      string           `json:"explanation"`
	Indicators       []string         `json:"indicators"`
	DetectionSummary DetectionSummary `json:"detectionSummary"`
}

// DetectionSummary mirrors classifier.Education's nested summary.
type DetectionSummary struct {
	IsAI       bool    `json:"isAi"`
	Confidence float64 `json:"confidence"`
	Severity   string  `json:"severity"`
}

// Fetcher is the subset of *classifier.Client education needs.
type Fetcher interface {
	Educate(ctx context.Context, baseID string) (classifier.Education, error)
}

// Fetch performs the one-shot education request for baseID and decodes its
// base64 frames. A single bad frame does not fail the whole request; it is
// silently dropped so the caller can still show the rest.
func Fetch(ctx context.Context, client Fetcher, baseID string) (Result, error) {
	edu, err := client.Educate(ctx, baseID)
	if err != nil {
		return Result{}, fmt.Errorf("education: fetch failed: %w", err)
	}

	frames := make([][]byte, 0, len(edu.Frames))
	for _, encoded := range edu.Frames {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		frames = append(frames, decoded)
	}

	return Result{
		Frames:      frames,
		Explanation: edu.Explanation,
		Indicators:  edu.Indicators,
		DetectionSummary: DetectionSummary{
			IsAI:       edu.DetectionSummary.IsAI,
			Confidence: edu.DetectionSummary.Confidence,
			Severity:   edu.DetectionSummary.Severity,
		},
	}, nil
}
