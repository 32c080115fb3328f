package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"edulink/internal/core"
	"edulink/internal/log"
	"edulink/internal/overview"
	appweb "edulink/web"
)

// pageData feeds every parent template.
type pageData struct {
	Title      string
	Token      string
	Page       *overview.PageView
	Err        string
	Invite     string
	FormError  string
	Remember   bool
	Remembered bool
}

var templateFuncs = template.FuncMap{
	"statusClass": func(s core.AttendanceStatus) string {
		switch s {
		case core.StatusPresent, core.StatusAbsent, core.StatusLate:
			return "badge-" + string(s)
		default:
			return "badge-unknown"
		}
	},
}

func parseTemplates(fsys fs.FS) (*template.Template, error) {
	t, err := template.New("").Funcs(templateFuncs).ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

func defaultTemplates() (*template.Template, error) {
	return parseTemplates(appweb.TemplatesFS)
}

// render executes name into a buffer first so a failing template never
// leaves a half-written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender, "template", name, log.FieldError, err.Error())
		http.Error(w, "페이지를 표시할 수 없습니다.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// apiError is the staff API error body.
type apiError struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: code, Message: message})
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
