// Package overview turns parent overview payloads into the canonical view model
// and derives what the parent page displays for each record.
package overview

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"edulink/internal/core"
)

// Field-name candidates per concept, tried in order. The camelCase names at the end
// are the view model's own JSON names.
var (
	idFields        = []string{"id"}
	dateFields      = []string{"record_date", "date"}
	attendanceField = []string{"attendance", "status", "attendanceStatus"}
	keyFields       = []string{"feedback_key", "feedback_code", "feedbackKey"}
	emojiFields     = []string{"feedback_emoji", "status_emoji", "feedbackEmoji"}
	textFields      = []string{"feedback_text", "status_text", "feedbackText"}
	classNameFields = []string{"class_name", "className"}

	studentIDFields   = []string{"id", "student_id"}
	studentNameFields = []string{"name", "student_name"}

	rowStudentIDFields   = []string{"student_id"}
	rowStudentNameFields = []string{"student_name"}
)

// Normalizer resolves "today" against a clock in a fixed location.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

// NewNormalizer returns a normalizer using the wall clock in loc (time.Local when nil).
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc, now: time.Now}
}

// WithClock returns a copy of n reading the time from now.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	c := *n
	c.now = now
	return &c
}

// Today returns the current calendar day as YYYY-MM-DD.
func (n *Normalizer) Today() string {
	return core.Today(n.now(), n.loc).String()
}

// Normalize converts raw using the normalizer's notion of today.
func (n *Normalizer) Normalize(raw any) core.OverviewViewModel {
	return Normalize(raw, n.Today())
}

// Normalize converts a decoded overview payload into the view model. raw may be an
// object with student/today/recent or a flat list of rows; today is YYYY-MM-DD and
// is only consulted for row lists without an is_today flag. Normalize never fails:
// unusable input degrades to an emptier view model.
func Normalize(raw any, today string) core.OverviewViewModel {
	if obj, ok := asObject(raw); ok {
		return fromObject(obj)
	}
	rows, _ := asList(raw)
	return fromRows(rows, today)
}

func fromObject(obj map[string]any) core.OverviewViewModel {
	vm := core.OverviewViewModel{Recent: []core.DailyRecord{}}

	if s, ok := asObject(obj["student"]); ok {
		vm.Student = studentFrom(s, studentIDFields, studentNameFields)
	}
	var todayID string
	if t, ok := asObject(obj["today"]); ok {
		todayID = pick(t, idFields)
		if rec, ok := recordFrom(t); ok {
			vm.Today = &rec
		}
	}
	items, _ := asList(obj["recent"])
	vm.Recent = recentFrom(items, todayID)
	return vm
}

func fromRows(rows []any, today string) core.OverviewViewModel {
	vm := core.OverviewViewModel{Recent: []core.DailyRecord{}}

	objs := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		if o, ok := asObject(r); ok {
			objs = append(objs, o)
		}
	}

	for _, o := range objs {
		if pick(o, rowStudentIDFields) != "" || pick(o, rowStudentNameFields) != "" {
			vm.Student = studentFrom(o, rowStudentIDFields, rowStudentNameFields)
			break
		}
	}

	todayRow := findToday(objs, today)
	if todayRow != nil {
		if rec, ok := recordFrom(todayRow); ok {
			vm.Today = &rec
		}
	}

	var todayID string
	if todayRow != nil {
		todayID = pick(todayRow, idFields)
	}
	vm.Recent = make([]core.DailyRecord, 0, len(objs))
	for _, o := range objs {
		rec, ok := recordFrom(o)
		if !ok {
			continue
		}
		if todayID != "" && rec.ID == todayID {
			continue
		}
		vm.Recent = append(vm.Recent, rec)
	}
	return vm
}

// findToday prefers an explicit is_today flag over a date match.
func findToday(rows []map[string]any, today string) map[string]any {
	for _, r := range rows {
		if b, ok := r["is_today"].(bool); ok && b {
			return r
		}
	}
	if today == "" {
		return nil
	}
	for _, r := range rows {
		if pick(r, dateFields) == today {
			return r
		}
	}
	return nil
}

// recentFrom drops the record carrying todayID even when today itself was unusable.
func recentFrom(items []any, todayID string) []core.DailyRecord {
	out := make([]core.DailyRecord, 0, len(items))
	for _, it := range items {
		o, ok := asObject(it)
		if !ok {
			continue
		}
		rec, ok := recordFrom(o)
		if !ok {
			continue
		}
		if todayID != "" && rec.ID == todayID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// recordFrom resolves aliases; records without an id or a date are rejected.
func recordFrom(o map[string]any) (core.DailyRecord, bool) {
	rec := core.DailyRecord{
		ID:               pick(o, idFields),
		Date:             pick(o, dateFields),
		AttendanceStatus: core.ParseAttendanceStatus(pick(o, attendanceField)),
		FeedbackKey:      pick(o, keyFields),
		FeedbackEmoji:    pick(o, emojiFields),
		FeedbackText:     pick(o, textFields),
	}
	if rec.ID == "" || rec.Date == "" {
		return core.DailyRecord{}, false
	}
	return rec, true
}

func studentFrom(o map[string]any, idKeys, nameKeys []string) *core.StudentRef {
	s := &core.StudentRef{
		ID:        pick(o, idKeys),
		Name:      pick(o, nameKeys),
		ClassName: pick(o, classNameFields),
	}
	if s.ID == "" && s.Name == "" {
		return nil
	}
	return s
}

// pick returns the first candidate present with a non-empty scalar value.
func pick(o map[string]any, candidates []string) string {
	for _, k := range candidates {
		if s := scalarString(o[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	default:
		return nil, false
	}
}
