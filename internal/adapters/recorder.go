// Package adapters fits the attendance recording paths behind one Recorder port so
// HTTP handlers work the same with or without the local outbox.
package adapters

import (
	"context"

	"edulink/internal/core"
)

// AttendanceWriter is the backend call a direct write goes through.
type AttendanceWriter interface {
	SetAttendanceWithFeedback(ctx context.Context, e core.AttendanceEntry) error
}

// DirectRecorder writes straight to the backend and reports the result synchronously.
type DirectRecorder struct {
	writer AttendanceWriter
}

func NewDirectRecorder(w AttendanceWriter) *DirectRecorder {
	return &DirectRecorder{writer: w}
}

func (d *DirectRecorder) Record(ctx context.Context, e core.AttendanceEntry) (core.RecordReceipt, error) {
	e = e.Normalize()
	if err := e.Validate(); err != nil {
		return core.RecordReceipt{}, err
	}
	if err := d.writer.SetAttendanceWithFeedback(ctx, e); err != nil {
		return core.RecordReceipt{}, err
	}
	return core.RecordReceipt{Queued: false}, nil
}
