package backend

import (
	"context"

	"edulink/internal/core"
)

// Ports for the remote attendance backend.
type (
	OverviewReader interface {
		// GetParentOverview returns the undecoded overview payload for a parent token.
		GetParentOverview(ctx context.Context, token string) (any, error)
	}

	AttendanceWriter interface {
		SetAttendanceWithFeedback(ctx context.Context, e core.AttendanceEntry) error
	}

	ParentLinkIssuer interface {
		// CreateOrGetParentLink returns the student's parent token, issuing one if needed.
		CreateOrGetParentLink(ctx context.Context, studentID string) (string, error)
	}

	RollReader interface {
		GetClassRoll(ctx context.Context, classID string, date core.Date) ([]core.RollRow, error)
		GetTodayClasses(ctx context.Context, academyID string, date core.Date) ([]core.TodayClass, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Recorder accepts staff attendance writes, either directly or through the outbox.
	Recorder interface {
		Record(ctx context.Context, e core.AttendanceEntry) (core.RecordReceipt, error)
	}
)

// Backend is everything the HTTP layer reads from or writes to the remote store.
type Backend interface {
	OverviewReader
	AttendanceWriter
	ParentLinkIssuer
	RollReader
	Pinger
}
