// Package trace assigns request ids and records per-request logs and metrics.
package trace

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"edulink/internal/log"
	"edulink/internal/metrics"
)

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the id assigned by Middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Middleware assigns a request id, enriches the context logger with it,
// logs the request and records it under its route pattern.
type Middleware struct {
	logger   *log.StructuredLogger
	clientIP func(*http.Request) string
}

func New(logger *log.Logger, clientIP func(*http.Request) string) *Middleware {
	return &Middleware{logger: log.NewStructuredLogger(logger), clientIP: clientIP}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := incomingID(r)
		w.Header().Set(HeaderRequestID, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldRequestID, id))
		r = r.WithContext(ctx)

		ip := ""
		if m.clientIP != nil {
			ip = m.clientIP(r)
		}
		m.logger.LogHTTPStart(ctx, r, ip)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		route := routePattern(r)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		m.logger.LogHTTPEnd(ctx, r, sw.status, elapsed.Milliseconds(), ip)
	})
}

// incomingID keeps a well-formed upstream id, otherwise mints one.
func incomingID(r *http.Request) string {
	if v := r.Header.Get(HeaderRequestID); v != "" && len(v) <= 64 {
		if _, err := uuid.Parse(v); err == nil {
			return v
		}
	}
	return uuid.NewString()
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
