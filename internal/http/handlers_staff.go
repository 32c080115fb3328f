package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"edulink/internal/auth"
	"edulink/internal/core"
	"edulink/internal/log"
	"edulink/internal/supabase"
)

func (s *Server) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.deps.Recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "recorder_unavailable", "출결 기록을 사용할 수 없습니다.")
		return
	}

	var req recordAttendanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	entry, err := req.entry()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_date", err.Error())
		return
	}

	receipt, err := s.deps.Recorder.Record(ctx, entry)
	if err != nil {
		s.writeBackendError(w, r, log.OpRecord, err)
		return
	}

	logger := log.NewStructuredLogger(log.FromContext(ctx).WithComponent(log.ComponentAttendance))
	logger.LogAttendanceRecorded(ctx, entry.ClassID, entry.StudentID, entry.Date.String(), string(entry.Status), receipt.OutboxID)

	status := http.StatusOK
	if receipt.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, receipt)
}

func (s *Server) handleParentLink(w http.ResponseWriter, r *http.Request) {
	studentID := strings.TrimSpace(chi.URLParam(r, "studentId"))
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_student", core.ErrEmptyStudentID.Error())
		return
	}
	token, err := s.deps.Links.CreateOrGetParentLink(r.Context(), studentID)
	if err != nil {
		s.writeBackendError(w, r, log.OpParentLink, err)
		return
	}
	writeJSON(w, http.StatusOK, core.ParentLink{
		StudentID: studentID,
		Token:     token,
		URL:       s.parentOrigin(r) + overviewPath(token),
	})
}

func (s *Server) handleClassRoll(w http.ResponseWriter, r *http.Request) {
	classID := strings.TrimSpace(chi.URLParam(r, "classId"))
	date, err := dateParam(r, s.opts.Now(), s.opts.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	rows, err := s.deps.Backend.GetClassRoll(r.Context(), classID, date)
	if err != nil {
		s.writeBackendError(w, r, log.OpClassRoll, err)
		return
	}
	if rows == nil {
		rows = []core.RollRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"class_id": classID,
		"date":     date.String(),
		"rows":     rows,
	})
}

func (s *Server) handleTodayClasses(w http.ResponseWriter, r *http.Request) {
	academyID := strings.TrimSpace(chi.URLParam(r, "academyId"))
	date, err := dateParam(r, s.opts.Now(), s.opts.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	classes, err := s.deps.Backend.GetTodayClasses(r.Context(), academyID, date)
	if err != nil {
		s.writeBackendError(w, r, log.OpTodayClasses, err)
		return
	}
	if classes == nil {
		classes = []core.TodayClass{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"academy_id": academyID,
		"date":       date.String(),
		"classes":    classes,
	})
}

func (s *Server) handleFeedbackPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"emojis":  core.FeedbackEmojis,
		"presets": core.FeedbackPresets,
		"codes":   core.FeedbackCodes,
	})
}

// parentOrigin prefers the configured public origin over the request's host.
func (s *Server) parentOrigin(r *http.Request) string {
	if s.opts.ParentWebOrigin != "" {
		return strings.TrimRight(s.opts.ParentWebOrigin, "/")
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var verr *validationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{
			Error:   "validation_failed",
			Message: "입력값을 확인해주세요.",
			Fields:  verr.fields,
		})
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "요청 본문이 너무 큽니다.")
	default:
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
	}
}

var validationErrs = []error{
	core.ErrEmptyClassID, core.ErrEmptyStudentID, core.ErrInvalidDate,
	core.ErrInvalidStatus, core.ErrInvalidEmoji, core.ErrTextTooLong,
}

// writeBackendError maps domain, remote and transport failures to the API error body.
func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			writeError(w, http.StatusUnprocessableEntity, "invalid_entry", err.Error())
			return
		}
	}

	fields := log.NewFields().WithOperation(op).WithError(err)
	if c := auth.ClaimsFromContext(ctx); c != nil {
		fields["staff_id"] = c.Subject
	}

	var remote *supabase.RemoteError
	switch {
	case errors.Is(err, core.ErrUnknownStudent), errors.Is(err, core.ErrUnknownClass):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &remote) && remote.Unauthorized():
		log.FromContext(ctx).WarnContext(ctx, "Backend rejected staff credentials", fields.ToSlice()...)
		writeError(w, http.StatusForbidden, "forbidden", "권한이 없습니다.")
	case errors.As(err, &remote):
		log.FromContext(ctx).ErrorContext(ctx, "Backend RPC failed", fields.ToSlice()...)
		writeError(w, http.StatusBadGateway, "backend_error", remote.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.FromContext(ctx).ErrorContext(ctx, "Backend RPC timed out", fields.ToSlice()...)
		writeError(w, http.StatusGatewayTimeout, "backend_timeout", "백엔드 응답이 지연되고 있습니다.")
	default:
		log.FromContext(ctx).ErrorContext(ctx, "Staff request failed", fields.ToSlice()...)
		writeError(w, http.StatusInternalServerError, "internal_error", "요청을 처리하지 못했습니다.")
	}
}
