package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lensguard/agent/internal/verdict"
)

func TestAnalyzeReturnsVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze/post_1" {
			t.Errorf("got path %q, want /analyze/post_1", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"is_ai":true,"confidence":0.91,"severity":"HIGH","reasons":["artifact"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := c.Analyze(ctx, "post_1")
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if v.Label() != verdict.LabelLikelyAI {
		t.Errorf("got label %q, want %q", v.Label(), verdict.LabelLikelyAI)
	}
	if v.Severity != verdict.SeverityHigh {
		t.Errorf("got severity %q, want HIGH", v.Severity)
	}
	if len(v.Reasons) != 1 || v.Reasons[0] != "artifact" {
		t.Errorf("got reasons %v, want [artifact]", v.Reasons)
	}
}

func TestAnalyzeReturnsErrNotReadyOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Analyze(ctx, "post_missing")
	if err != ErrNotReady {
		t.Fatalf("got error %v, want ErrNotReady", err)
	}
}

func TestEducateRoundTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/educate/post_1" {
			t.Errorf("got path %q, want /educate/post_1", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"frames": ["YmFzZTY0anBlZw=="],
			"explanation": "inconsistent lighting across frames",
			"indicators": ["lighting", "edge artifacts"],
			"detection_summary": {"is_ai": true, "confidence": 0.87, "severity": "HIGH"}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	edu, err := c.Educate(ctx, "post_1")
	if err != nil {
		t.Fatalf("educate failed: %v", err)
	}
	if len(edu.Frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(edu.Frames))
	}
	if edu.Explanation == "" {
		t.Error("expected non-empty explanation")
	}
	if len(edu.Indicators) != 2 {
		t.Errorf("got %d indicators, want 2", len(edu.Indicators))
	}
	if !edu.DetectionSummary.IsAI || edu.DetectionSummary.Severity != "HIGH" {
		t.Errorf("unexpected detection summary: %+v", edu.DetectionSummary)
	}
}

func TestAnalyzeFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	// Avoid waiting out the full retry/backoff schedule in a unit test.
	c.retry.MaxRetries = 0

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := c.Analyze(ctx, "post_err"); err == nil {
		t.Fatal("expected error on repeated server failure")
	}
}
