package sheets

import (
	"context"
	"time"

	"edulink/internal/core"
)

// Ports for outbound adapters.
type (
	// AttendanceExporter mirrors delivered attendance entries to a spreadsheet.
	AttendanceExporter interface {
		AppendAttendance(ctx context.Context, e core.AttendanceEntry, syncedAt time.Time) (rowRef string, err error)
	}
)

// Row is the column layout of a mirrored entry:
// date, class id, student id, status, emoji, text, synced at.
func Row(e core.AttendanceEntry, syncedAt time.Time) []any {
	return []any{
		e.Date.String(),
		e.ClassID,
		e.StudentID,
		string(e.Status),
		e.Emoji,
		e.Text,
		syncedAt.UTC().Format(time.RFC3339),
	}
}
