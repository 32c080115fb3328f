package log

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type ctxKey struct{}

// Middleware stores logger in the request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from the request context, falling back to the slog default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// RequestIDMiddleware enriches the context logger with the id returned by extractRequestID.
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := FromContext(r.Context()).With(FieldRequestID, extractRequestID(r))
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, redactPath(r.URL.Path), redactQuery(r), r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)

	FromContext(ctx).DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs request completion at a level chosen by status code.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, redactPath(r.URL.Path), redactQuery(r), "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)

	l := FromContext(ctx)
	l.Logger.Log(ctx, level, "HTTP request completed", l.args(fields.ToSlice())...)
}

// LogAttendanceRecorded logs an accepted attendance write.
func (sl *StructuredLogger) LogAttendanceRecorded(ctx context.Context, classID, studentID, date, status string, outboxID int64) {
	fields := NewFields().
		WithAttendance(classID, studentID, date, status).
		WithOperation(OpRecord).
		ToSlice()
	fields = append(fields, FieldOutboxID, outboxID)

	sl.logger.InfoContext(ctx, "Attendance recorded", fields...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	sl.logger.ErrorContext(ctx, msg, fields.WithError(err).WithOperation(operation).ToSlice()...)
}

// redactQuery hides the parent token when it travels in the query string.
func redactQuery(r *http.Request) string {
	q := r.URL.Query()
	if tok := q.Get("token"); tok != "" {
		q.Set("token", TokenHint(tok))
		return q.Encode()
	}
	return r.URL.RawQuery
}

// tokenPathPrefixes are routes whose next segment is a parent token.
var tokenPathPrefixes = []string{"/p/", "/ui/overview/"}

// redactPath hides a parent token carried as a path segment.
func redactPath(path string) string {
	for _, prefix := range tokenPathPrefixes {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" || rest == "forget" {
			continue
		}
		tok, tail, _ := strings.Cut(rest, "/")
		if tail != "" {
			tail = "/" + tail
		}
		return prefix + TokenHint(tok) + tail
	}
	return path
}
