package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 3 * time.Second

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleReady probes the backend and every registered dependency concurrently.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := append([]ReadinessCheck{{Name: "backend", Check: s.deps.Backend.Ping}}, s.deps.Readiness...)

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(checks))
		ready   = true
	)
	var g errgroup.Group
	for _, c := range checks {
		g.Go(func() error {
			res := "ok"
			if err := c.Check(ctx); err != nil {
				res = err.Error()
			}
			mu.Lock()
			results[c.Name] = res
			if res != "ok" {
				ready = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": results})
}
