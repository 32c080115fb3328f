// Package memory is an in-process stand-in for the remote attendance backend, used for
// local development and tests. It answers the same calls the Supabase client does and
// can emit either overview payload shape.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"edulink/internal/core"
)

// Overview payload shapes the store can emit.
const (
	ShapeObject = "object"
	ShapeRows   = "rows"
)

// Seed is the JSON document a store is loaded from.
type Seed struct {
	Shape    string            `json:"shape"`
	Classes  []SeedClass       `json:"classes"`
	Students []SeedStudent     `json:"students"`
	Tokens   map[string]string `json:"tokens"`
	Records  []SeedRecord      `json:"records"`
}

type SeedClass struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AcademyID string `json:"academy_id"`
	// Weekdays lists the days (0 = Sunday) the class meets; empty means every day.
	Weekdays []int `json:"weekdays"`
}

type SeedStudent struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ClassID           string `json:"class_id"`
	RemainingSessions int    `json:"remaining_sessions"`
}

type SeedRecord struct {
	ClassID   string `json:"class_id"`
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	Emoji     string `json:"emoji"`
	Text      string `json:"text"`
}

type recordKey struct {
	studentID string
	date      string
}

type record struct {
	id    int64
	entry core.AttendanceEntry
}

type Store struct {
	mu       sync.Mutex
	shape    string
	loc      *time.Location
	now      func() time.Time
	classes  map[string]SeedClass
	students map[string]SeedStudent
	tokens   map[string]string // token -> student id
	links    map[string]string // student id -> token
	records  map[recordKey]record
	nextID   int64
}

// New builds a store from seed. loc decides which calendar day is "today".
func New(seed Seed, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Store{
		shape:    seed.Shape,
		loc:      loc,
		now:      time.Now,
		classes:  map[string]SeedClass{},
		students: map[string]SeedStudent{},
		tokens:   map[string]string{},
		links:    map[string]string{},
		records:  map[recordKey]record{},
	}
	if s.shape == "" {
		s.shape = ShapeObject
	}
	if s.shape != ShapeObject && s.shape != ShapeRows {
		return nil, fmt.Errorf("unknown overview shape %q", seed.Shape)
	}

	for _, c := range seed.Classes {
		s.classes[c.ID] = c
	}
	for _, st := range seed.Students {
		if _, ok := s.classes[st.ClassID]; !ok {
			return nil, fmt.Errorf("student %s: %w %q", st.ID, core.ErrUnknownClass, st.ClassID)
		}
		s.students[st.ID] = st
	}
	for token, studentID := range seed.Tokens {
		if _, ok := s.students[studentID]; !ok {
			return nil, fmt.Errorf("token %s: %w %q", token, core.ErrUnknownStudent, studentID)
		}
		s.tokens[token] = studentID
		s.links[studentID] = token
	}
	for _, r := range seed.Records {
		d, err := core.ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("seed record %s/%s: %w", r.StudentID, r.Date, err)
		}
		e := core.AttendanceEntry{
			ClassID:   r.ClassID,
			StudentID: r.StudentID,
			Date:      d,
			Status:    core.AttendanceStatus(r.Status),
			Emoji:     r.Emoji,
			Text:      r.Text,
		}
		if err := s.put(e); err != nil {
			return nil, fmt.Errorf("seed record %s/%s: %w", r.StudentID, r.Date, err)
		}
	}
	return s, nil
}

// NewFromFile loads a seed file. An empty path yields the demo dataset.
func NewFromFile(path string, loc *time.Location) (*Store, error) {
	if path == "" {
		return New(DemoSeed(time.Now(), loc), loc)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return New(seed, loc)
}

// DemoSeed is a small academy with one class, two students and a week of records
// ending on the day before now. Token "demo" opens the first student's overview.
func DemoSeed(now time.Time, loc *time.Location) Seed {
	if loc == nil {
		loc = time.Local
	}
	today := core.Today(now, loc)
	day := func(offset int) string {
		return core.Date{Time: today.AddDate(0, 0, offset)}.String()
	}
	return Seed{
		Shape: ShapeObject,
		Classes: []SeedClass{
			{ID: "class-math-a", Name: "중등 수학 A", AcademyID: "academy-1"},
		},
		Students: []SeedStudent{
			{ID: "student-1", Name: "김민준", ClassID: "class-math-a", RemainingSessions: 8},
			{ID: "student-2", Name: "이서연", ClassID: "class-math-a", RemainingSessions: 3},
		},
		Tokens: map[string]string{"demo": "student-1"},
		Records: []SeedRecord{
			{ClassID: "class-math-a", StudentID: "student-1", Date: day(-1), Status: "present", Emoji: "😊", Text: "문제 풀이에 집중을 잘했어요"},
			{ClassID: "class-math-a", StudentID: "student-1", Date: day(-2), Status: "late", Emoji: "😐"},
			{ClassID: "class-math-a", StudentID: "student-1", Date: day(-3), Status: "absent"},
			{ClassID: "class-math-a", StudentID: "student-1", Date: day(-5), Status: "present", Emoji: "😓"},
			{ClassID: "class-math-a", StudentID: "student-2", Date: day(-1), Status: "present", Emoji: "💬", Text: "질문을 많이 했어요"},
		},
	}
}

// WithClock overrides the clock used to find today's record.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

// GetParentOverview builds the payload the backend would return for token.
func (s *Store) GetParentOverview(_ context.Context, token string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	studentID, ok := s.tokens[strings.TrimSpace(token)]
	if !ok {
		return nil, core.ErrUnknownToken
	}
	st := s.students[studentID]
	className := s.classes[st.ClassID].Name
	today := core.Today(s.now(), s.loc).String()

	var recs []record
	for k, r := range s.records {
		if k.studentID == studentID {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		di, dj := recs[i].entry.Date.String(), recs[j].entry.Date.String()
		if di != dj {
			return di > dj
		}
		return recs[i].id > recs[j].id
	})

	if s.shape == ShapeRows {
		return rowsPayload(st, className, recs, today), nil
	}
	return objectPayload(st, className, recs, today), nil
}

func objectPayload(st SeedStudent, className string, recs []record, today string) map[string]any {
	out := map[string]any{
		"student": map[string]any{"id": st.ID, "name": st.Name, "class_name": className},
		"today":   nil,
	}
	recent := []any{}
	for _, r := range recs {
		row := recordPayload(r)
		if r.entry.Date.String() == today {
			out["today"] = row
			continue
		}
		recent = append(recent, row)
	}
	out["recent"] = recent
	return out
}

func rowsPayload(st SeedStudent, className string, recs []record, today string) []any {
	rows := make([]any, 0, len(recs))
	for _, r := range recs {
		row := map[string]any{
			"id":           r.id,
			"student_id":   st.ID,
			"student_name": st.Name,
			"class_name":   className,
			"date":         r.entry.Date.String(),
			"status":       string(r.entry.Status),
			"is_today":     r.entry.Date.String() == today,
		}
		if r.entry.Emoji != "" {
			row["status_emoji"] = r.entry.Emoji
		}
		if r.entry.Text != "" {
			row["status_text"] = r.entry.Text
		}
		rows = append(rows, row)
	}
	return rows
}

func recordPayload(r record) map[string]any {
	row := map[string]any{
		"id":          r.id,
		"record_date": r.entry.Date.String(),
		"attendance":  string(r.entry.Status),
	}
	if r.entry.Emoji != "" {
		row["feedback_emoji"] = r.entry.Emoji
	}
	if r.entry.Text != "" {
		row["feedback_text"] = r.entry.Text
	}
	return row
}

// SetAttendanceWithFeedback upserts the student's record for the day.
func (s *Store) SetAttendanceWithFeedback(_ context.Context, e core.AttendanceEntry) error {
	e = e.Normalize()
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(e)
}

func (s *Store) put(e core.AttendanceEntry) error {
	st, ok := s.students[e.StudentID]
	if !ok {
		return fmt.Errorf("%w %q", core.ErrUnknownStudent, e.StudentID)
	}
	if st.ClassID != e.ClassID {
		return fmt.Errorf("%w %q for student %s", core.ErrUnknownClass, e.ClassID, e.StudentID)
	}
	k := recordKey{studentID: e.StudentID, date: e.Date.String()}
	r, exists := s.records[k]
	if !exists {
		s.nextID++
		r.id = s.nextID
	}
	r.entry = e
	s.records[k] = r
	return nil
}

// CreateOrGetParentLink returns the student's token, minting one on first use.
func (s *Store) CreateOrGetParentLink(_ context.Context, studentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[studentID]; !ok {
		return "", fmt.Errorf("%w %q", core.ErrUnknownStudent, studentID)
	}
	if token, ok := s.links[studentID]; ok {
		return token, nil
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.links[studentID] = token
	s.tokens[token] = studentID
	return token, nil
}

// GetClassRoll lists the class's students by name with their record for date.
func (s *Store) GetClassRoll(_ context.Context, classID string, date core.Date) ([]core.RollRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.classes[classID]; !ok {
		return nil, fmt.Errorf("%w %q", core.ErrUnknownClass, classID)
	}
	rows := []core.RollRow{}
	for _, st := range s.students {
		if st.ClassID != classID {
			continue
		}
		row := core.RollRow{
			StudentID:         st.ID,
			StudentName:       st.Name,
			RemainingSessions: fmt.Sprint(st.RemainingSessions),
		}
		if r, ok := s.records[recordKey{studentID: st.ID, date: date.String()}]; ok {
			row.Status = r.entry.Status
			row.FeedbackEmoji = r.entry.Emoji
			row.FeedbackText = r.entry.Text
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StudentName < rows[j].StudentName })
	return rows, nil
}

// GetTodayClasses lists the academy's classes meeting on date.
func (s *Store) GetTodayClasses(_ context.Context, academyID string, date core.Date) ([]core.TodayClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	weekday := int(date.Weekday())
	out := []core.TodayClass{}
	for _, c := range s.classes {
		if c.AcademyID != academyID || !meetsOn(c.Weekdays, weekday) {
			continue
		}
		out = append(out, core.TodayClass{ClassID: c.ID, ClassName: c.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassName < out[j].ClassName })
	return out, nil
}

func meetsOn(days []int, weekday int) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}
