package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"edulink/internal/core"
)

const maxBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// recordAttendanceRequest is the staff attendance write body.
type recordAttendanceRequest struct {
	ClassID   string `json:"class_id" validate:"required,notblank,max=64"`
	StudentID string `json:"student_id" validate:"required,notblank,max=64"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Status    string `json:"status" validate:"required,oneof=present absent late"`
	Emoji     string `json:"emoji" validate:"omitempty,max=16"`
	Text      string `json:"text" validate:"omitempty,max=1000"`
}

func (req recordAttendanceRequest) entry() (core.AttendanceEntry, error) {
	d, err := core.ParseDate(req.Date)
	if err != nil {
		return core.AttendanceEntry{}, err
	}
	return core.AttendanceEntry{
		ClassID:   req.ClassID,
		StudentID: req.StudentID,
		Date:      d,
		Status:    core.AttendanceStatus(req.Status),
		Emoji:     req.Emoji,
		Text:      req.Text,
	}, nil
}

type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for f, tag := range e.fields {
		parts = append(parts, f+" ("+tag+")")
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return &validationError{fields: fields}
		}
		return err
	}
	return nil
}

// dateParam reads ?date=YYYY-MM-DD, defaulting to today in loc.
func dateParam(r *http.Request, now time.Time, loc *time.Location) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get("date"))
	if v == "" {
		return core.Today(now, loc), nil
	}
	if err := validate.Var(v, "datetime=2006-01-02"); err != nil {
		return core.Date{}, core.ErrInvalidDate
	}
	return core.ParseDate(v)
}
