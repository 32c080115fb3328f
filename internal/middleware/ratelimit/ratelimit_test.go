package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	l := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(l.Stop)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowWindow(t *testing.T) {
	l, now := newTestLimiter(t, 2)

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("other clients are independent")
	}

	*now = now.Add(61 * time.Second)
	if !l.Allow("a") {
		t.Fatal("new window should reset the count")
	}
}

func TestPrune(t *testing.T) {
	l, now := newTestLimiter(t, 5)
	l.Allow("a")
	*now = now.Add(11 * time.Minute)
	l.Allow("b")

	if n := l.Prune(10 * time.Minute); n != 1 {
		t.Fatalf("Prune() = %d, want 1", n)
	}
	if l.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", l.ActiveClients())
	}
}

func TestMiddlewareOnlyLimitsListedMethods(t *testing.T) {
	var limitedKeys []string
	l := NewLimiter(Config{
		RequestsPerMinute: 1,
		CleanupInterval:   time.Hour,
		OnLimited:         func(key string) { limitedKeys = append(limitedKeys, key) },
	})
	defer l.Stop()

	h := l.Middleware(func(*http.Request) string { return "1.2.3.4" }, nil, http.MethodPost)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %d status = %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first POST status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("second POST status = %d, Retry-After = %q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if len(limitedKeys) != 1 || limitedKeys[0] != "1.2.3.4" {
		t.Errorf("OnLimited keys = %v", limitedKeys)
	}
}
