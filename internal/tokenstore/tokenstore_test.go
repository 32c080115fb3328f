package tokenstore

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCookieRoundTrip(t *testing.T) {
	store := NewCookie(true)

	rec := httptest.NewRecorder()
	store.Set(rec, "abc123")
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %v", cookies)
	}
	ck := cookies[0]
	if ck.Name != CookieName || ck.Value != "abc123" || !ck.HttpOnly || !ck.Secure || ck.Path != "/" {
		t.Errorf("cookie = %+v", ck)
	}

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.AddCookie(ck)
	if got, ok := store.Get(req); !ok || got != "abc123" {
		t.Errorf("Get() = %q, %v", got, ok)
	}
}

func TestCookieGetMissingOrBlank(t *testing.T) {
	store := NewCookie(false)

	if _, ok := store.Get(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Error("no cookie should report false")
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "  "})
	if _, ok := store.Get(req); ok {
		t.Error("blank cookie should report false")
	}
}

func TestCookieClearExpires(t *testing.T) {
	rec := httptest.NewRecorder()
	NewCookie(false).Clear(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Errorf("clear cookie = %+v", cookies)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory("")
	if _, ok := m.Get(nil); ok {
		t.Error("empty store should report false")
	}
	m.Set(nil, "tok")
	if got, ok := m.Get(nil); !ok || got != "tok" {
		t.Errorf("Get() = %q, %v", got, ok)
	}
	m.Clear(nil)
	if _, ok := m.Get(nil); ok {
		t.Error("token should be cleared")
	}
}
