package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"edulink/internal/core"
	"edulink/internal/storage"
)

var failed = storage.OutboxEntry{
	ID:      7,
	Version: 2,
	Retries: 4,
	Entry: core.AttendanceEntry{
		ClassID: "c1", StudentID: "s1", Date: core.NewDate(2024, 3, 15), Status: core.StatusAbsent,
	},
}

func TestNotifySyncFailedPostsWebhook(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlack(srv.URL, srv.Client())
	if err := n.NotifySyncFailed(context.Background(), failed, "remote 500"); err != nil {
		t.Fatalf("NotifySyncFailed() error = %v", err)
	}

	text, _ := body["text"].(string)
	if !strings.Contains(text, "2024-03-15") || !strings.Contains(text, "s1") {
		t.Errorf("text = %q", text)
	}
	if blocks, _ := body["blocks"].([]any); len(blocks) != 2 {
		t.Errorf("blocks = %v", body["blocks"])
	}
}

func TestNotifySyncFailedSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	n := NewSlack(srv.URL, srv.Client())
	if err := n.NotifySyncFailed(context.Background(), failed, "x"); err == nil {
		t.Error("expected error for non-2xx webhook response")
	}
}
