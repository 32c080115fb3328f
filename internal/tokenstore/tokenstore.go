// Package tokenstore remembers the parent token between visits.
package tokenstore

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// CookieName holds the remembered parent token.
const CookieName = "edulink_parent_token"

// Store is the one place the remembered token is read, written and forgotten.
type Store interface {
	Get(r *http.Request) (string, bool)
	Set(w http.ResponseWriter, token string)
	Clear(w http.ResponseWriter)
}

// Cookie keeps the token in an HttpOnly cookie.
type Cookie struct {
	Secure bool
	MaxAge time.Duration
}

func NewCookie(secure bool) *Cookie {
	return &Cookie{Secure: secure, MaxAge: 180 * 24 * time.Hour}
}

func (c *Cookie) Get(r *http.Request) (string, bool) {
	ck, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(ck.Value)
	return v, v != ""
}

func (c *Cookie) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *Cookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Memory holds a single token in process, for tests.
type Memory struct {
	mu    sync.Mutex
	token string
}

func NewMemory(token string) *Memory {
	return &Memory{token: token}
}

func (m *Memory) Get(*http.Request) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *Memory) Set(_ http.ResponseWriter, token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *Memory) Clear(http.ResponseWriter) {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
