package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edulink/internal/core"
	"edulink/internal/sheets"
)

// Sheet keeps mirrored rows in memory.
type Sheet struct {
	mu   sync.Mutex
	name string
	rows [][]any
}

var _ sheets.AttendanceExporter = (*Sheet)(nil)

func New(name string) *Sheet {
	if name == "" {
		name = "Attendance"
	}
	return &Sheet{name: name}
}

// AppendAttendance stores the row and returns an A1-style reference to it.
func (s *Sheet) AppendAttendance(_ context.Context, e core.AttendanceEntry, syncedAt time.Time) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, sheets.Row(e, syncedAt))
	n := len(s.rows)
	return fmt.Sprintf("%s!A%d:G%d", s.name, n, n), nil
}

// Rows returns a copy of everything appended so far.
func (s *Sheet) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}
