package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"edulink/internal/log"
)

func newRouter(buf *bytes.Buffer, seen *string) http.Handler {
	logger := log.New(log.Config{Format: "json", Output: buf, Component: log.ComponentHTTP})
	r := chi.NewRouter()
	r.Use(log.Middleware(logger))
	r.Use(New(logger, func(*http.Request) string { return "198.51.100.1" }).Handler)
	r.Get("/p/{token}", func(w http.ResponseWriter, r *http.Request) {
		*seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	return r
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	h := newRouter(&buf, &seen)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p/secret-token", nil))

	id := rec.Header().Get(HeaderRequestID)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("request id %q is not a uuid", id)
	}
	if seen != id {
		t.Errorf("context id = %q, header id = %q", seen, id)
	}
	out := buf.String()
	if !strings.Contains(out, `"request_id":"`+id+`"`) {
		t.Errorf("log lacks request id: %s", out)
	}
	if !strings.Contains(out, `"status_code":418`) {
		t.Errorf("log lacks status: %s", out)
	}
	if strings.Contains(out, "secret-token") {
		t.Errorf("token leaked into logs: %s", out)
	}
}

func TestMiddlewareKeepsValidIncomingID(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	h := newRouter(&buf, &seen)

	want := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/p/x", nil)
	req.Header.Set(HeaderRequestID, want)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != want {
		t.Errorf("request id = %q, want %q", got, want)
	}

	req = httptest.NewRequest(http.MethodGet, "/p/x", nil)
	req.Header.Set(HeaderRequestID, "not a uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got == "not a uuid" {
		t.Error("malformed incoming id should be replaced")
	}
}
