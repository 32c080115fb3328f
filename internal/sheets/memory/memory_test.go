package memory

import (
	"context"
	"testing"
	"time"

	"edulink/internal/core"
)

func TestSheetAppendAttendance(t *testing.T) {
	s := New("")
	syncedAt := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	e := core.AttendanceEntry{
		ClassID: "c1", StudentID: "s1", Date: core.NewDate(2024, 3, 15),
		Status: core.StatusPresent, Emoji: "😊", Text: "잘했어요",
	}

	ref, err := s.AppendAttendance(context.Background(), e, syncedAt)
	if err != nil || ref != "Attendance!A1:G1" {
		t.Fatalf("AppendAttendance() = %q, %v", ref, err)
	}
	ref, _ = s.AppendAttendance(context.Background(), e, syncedAt)
	if ref != "Attendance!A2:G2" {
		t.Errorf("second ref = %q", ref)
	}

	rows := s.Rows()
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d", len(rows))
	}
	want := []any{"2024-03-15", "c1", "s1", "present", "😊", "잘했어요", "2024-03-15T10:30:00Z"}
	for i, v := range want {
		if rows[0][i] != v {
			t.Errorf("rows[0][%d] = %v, want %v", i, rows[0][i], v)
		}
	}
}

func TestSheetRejectsInvalidEntry(t *testing.T) {
	s := New("Log")
	if _, err := s.AppendAttendance(context.Background(), core.AttendanceEntry{}, time.Now()); err == nil {
		t.Error("expected validation error")
	}
	if len(s.Rows()) != 0 {
		t.Error("invalid entries must not be stored")
	}
}
