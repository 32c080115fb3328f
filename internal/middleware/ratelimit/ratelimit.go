// Package ratelimit throttles requests per client with a fixed one-minute window.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter counts requests per client key.
type Limiter struct {
	mu       sync.Mutex
	clients  map[string]*window
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
	limited  func(key string)

	perMinute       int
	cleanupInterval time.Duration
}

type window struct {
	started  time.Time
	lastSeen time.Time
	count    int
}

type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration

	// OnLimited is called for every rejected request, e.g. to count it.
	OnLimited func(key string)
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter starts a limiter and its cleanup loop. Call Stop when done.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	l := &Limiter{
		clients:         make(map[string]*window),
		stop:            make(chan struct{}),
		now:             time.Now,
		limited:         cfg.OnLimited,
		perMinute:       cfg.RequestsPerMinute,
		cleanupInterval: cfg.CleanupInterval,
	}
	go l.cleanupLoop()
	return l
}

// Allow records one request for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[key]
	if !ok || now.Sub(w.started) >= time.Minute {
		l.clients[key] = &window{started: now, lastSeen: now, count: 1}
		return true
	}
	w.count++
	w.lastSeen = now
	return w.count <= l.perMinute
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Prune(10 * time.Minute)
		case <-l.stop:
			return
		}
	}
}

// Prune forgets clients idle for longer than idle and returns how many went.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	n := 0
	for key, w := range l.clients {
		if w.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			n++
		}
	}
	return n
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware limits requests whose method is in methods (all methods when empty).
// onLimit writes the rejection; nil writes a plain 429.
func (l *Limiter) Middleware(keyFn func(*http.Request) string, onLimit http.HandlerFunc, methods ...string) func(http.Handler) http.Handler {
	limited := make(map[string]bool, len(methods))
	for _, m := range methods {
		limited[m] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(limited) > 0 && !limited[r.Method] {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFn(r)
			if !l.Allow(key) {
				if l.limited != nil {
					l.limited(key)
				}
				w.Header().Set("Retry-After", strconv.Itoa(60))
				if onLimit != nil {
					onLimit(w, r)
					return
				}
				http.Error(w, "요청이 너무 많습니다. 잠시 후 다시 시도해주세요.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
