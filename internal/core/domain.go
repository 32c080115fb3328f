package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// MaxFeedbackTextLen bounds free-text feedback in runes.
const MaxFeedbackTextLen = 200

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
	StatusUnknown AttendanceStatus = "unknown"
)

type (
	AttendanceStatus string

	// Date is a calendar day with no time-of-day component.
	Date struct {
		time.Time
	}

	// AttendanceEntry is one staff write: a student's status and feedback for a class day.
	AttendanceEntry struct {
		ClassID   string
		StudentID string
		Date      Date
		Status    AttendanceStatus
		Emoji     string
		Text      string
	}

	// RollRow is one student line of a class roll for a given day.
	RollRow struct {
		StudentID         string           `json:"student_id"`
		StudentName       string           `json:"student_name"`
		Status            AttendanceStatus `json:"status,omitempty"`
		FeedbackEmoji     string           `json:"feedback_emoji,omitempty"`
		FeedbackText      string           `json:"feedback_text,omitempty"`
		RemainingSessions string           `json:"remaining_sessions"`
	}

	// TodayClass is a class scheduled for the requested day.
	TodayClass struct {
		ClassID   string `json:"class_id"`
		ClassName string `json:"class_name"`
	}

	// RecordReceipt tells staff whether a write went straight to the backend or was queued.
	RecordReceipt struct {
		Queued   bool   `json:"queued"`
		OutboxID int64  `json:"outbox_id,omitempty"`
		Version  int64  `json:"version,omitempty"`
		Key      string `json:"key,omitempty"`
	}

	// ParentLink is the shareable parent overview link for a student.
	ParentLink struct {
		StudentID string `json:"student_id"`
		Token     string `json:"token"`
		URL       string `json:"url"`
	}
)

var (
	ErrEmptyClassID   = errors.New("empty class id")
	ErrEmptyStudentID = errors.New("empty student id")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidStatus  = errors.New("invalid attendance status")
	ErrInvalidEmoji   = errors.New("unsupported feedback emoji")
	ErrTextTooLong    = errors.New("feedback text too long (max 200 characters)")

	ErrUnknownToken   = errors.New("유효하지 않은 링크입니다")
	ErrUnknownStudent = errors.New("unknown student")
	ErrUnknownClass   = errors.New("unknown class")
)

// ParseAttendanceStatus maps free-form values to a known status, defaulting to unknown.
func ParseAttendanceStatus(s string) AttendanceStatus {
	switch AttendanceStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPresent:
		return StatusPresent
	case StatusAbsent:
		return StatusAbsent
	case StatusLate:
		return StatusLate
	default:
		return StatusUnknown
	}
}

// Recordable reports whether staff may write this status.
func (s AttendanceStatus) Recordable() bool {
	return s == StatusPresent || s == StatusAbsent || s == StatusLate
}

func (s AttendanceStatus) String() string { return string(s) }

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Today returns the calendar day of now in loc. A nil loc means time.Local.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now.In(loc).Date()
	return NewDate(y, int(m), d)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Normalize returns a copy with trimmed fields; absent entries carry no feedback.
func (e AttendanceEntry) Normalize() AttendanceEntry {
	e.ClassID = strings.TrimSpace(e.ClassID)
	e.StudentID = strings.TrimSpace(e.StudentID)
	e.Status = AttendanceStatus(strings.ToLower(strings.TrimSpace(string(e.Status))))
	e.Emoji = strings.TrimSpace(e.Emoji)
	e.Text = strings.TrimSpace(e.Text)
	if e.Status == StatusAbsent {
		e.Emoji = ""
		e.Text = ""
	}
	return e
}

func (e AttendanceEntry) Validate() error {
	if strings.TrimSpace(e.ClassID) == "" {
		return ErrEmptyClassID
	}
	if strings.TrimSpace(e.StudentID) == "" {
		return ErrEmptyStudentID
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !e.Status.Recordable() {
		return ErrInvalidStatus
	}
	if e.Emoji != "" && !IsFeedbackEmoji(e.Emoji) {
		return ErrInvalidEmoji
	}
	if utf8.RuneCountInString(e.Text) > MaxFeedbackTextLen {
		return ErrTextTooLong
	}
	return nil
}
