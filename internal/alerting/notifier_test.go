package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"swx-monitor/internal/health"
)

func testAlert() ActiveAlert {
	now := time.Now().UTC()
	return ActiveAlert{
		ID:              "kp_storm_1",
		CriteriaID:      "kp_storm",
		Category:        CategoryGeomagnetic,
		Severity:        health.SeverityWarning,
		Parameter:       "kp_index",
		Value:           6,
		Threshold:       5,
		Message:         "kp_index is 6 (>= 5)",
		TriggeredAt:     now,
		ExpiresAt:       now.Add(time.Hour),
		Recommendations: []string{"Watch GPS accuracy and HF propagation at high latitudes"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "kp_index is 6") {
		t.Fatalf("message text should carry the alert message, got %q", received["text"])
	}
	if !strings.Contains(received["text"], "Watch GPS accuracy") {
		t.Fatalf("message text should carry recommendations, got %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("HTTP 502 should be an error")
	}
}
