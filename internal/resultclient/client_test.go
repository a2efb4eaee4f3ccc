package resultclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lensguard/agent/internal/verdict"
)

var testUpgrader = websocket.Upgrader{}

func TestSubscribeReceivesVerdict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/analysis/post_1", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		payload := `{"is_ai":true,"confidence":0.91,"severity":"HIGH","reasons":["artifact"]}`
		conn.WriteMessage(websocket.TextMessage, []byte(payload))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	baseURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	client := New(baseURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := client.Subscribe(ctx, "post_1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed without delivering a verdict")
		}
		if v.Label() != verdict.LabelLikelyAI {
			t.Errorf("got label %q, want %q", v.Label(), verdict.LabelLikelyAI)
		}
		if v.Severity != verdict.SeverityHigh {
			t.Errorf("got severity %q, want HIGH", v.Severity)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for verdict")
	}
}

func TestSubscribeClosesWithoutPayloadWhenStreamEndsEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/analysis/post_2", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		conn.Close()
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	baseURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	client := New(baseURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := client.Subscribe(ctx, "post_2")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close without a value")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestSubscribeFailsOnBadURL(t *testing.T) {
	client := New("ws://127.0.0.1:0")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := client.Subscribe(ctx, "post_3"); err == nil {
		t.Fatal("expected dial error against an unreachable address")
	}
}
