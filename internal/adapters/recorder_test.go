package adapters

import (
	"context"
	"errors"
	"testing"

	"edulink/internal/core"
)

type writer struct {
	got []core.AttendanceEntry
	err error
}

func (w *writer) SetAttendanceWithFeedback(_ context.Context, e core.AttendanceEntry) error {
	w.got = append(w.got, e)
	return w.err
}

func TestDirectRecorder(t *testing.T) {
	base := core.AttendanceEntry{
		ClassID: "c1", StudentID: "s1", Date: core.NewDate(2024, 3, 15),
		Status: "ABSENT", Emoji: "😊", Text: "ignored",
	}

	t.Run("normalizes before writing", func(t *testing.T) {
		w := &writer{}
		receipt, err := NewDirectRecorder(w).Record(context.Background(), base)
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if receipt.Queued {
			t.Error("direct writes are not queued")
		}
		if len(w.got) != 1 || w.got[0].Status != core.StatusAbsent || w.got[0].Emoji != "" || w.got[0].Text != "" {
			t.Errorf("written = %+v", w.got)
		}
	})

	t.Run("invalid entry never reaches backend", func(t *testing.T) {
		w := &writer{}
		e := base
		e.StudentID = ""
		if _, err := NewDirectRecorder(w).Record(context.Background(), e); !errors.Is(err, core.ErrEmptyStudentID) {
			t.Errorf("error = %v", err)
		}
		if len(w.got) != 0 {
			t.Error("backend should not be called")
		}
	})

	t.Run("backend error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		if _, err := NewDirectRecorder(&writer{err: boom}).Record(context.Background(), base); !errors.Is(err, boom) {
			t.Errorf("error = %v", err)
		}
	})
}
