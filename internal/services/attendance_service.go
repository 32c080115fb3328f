package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"edulink/internal/core"
	"edulink/internal/metrics"
	"edulink/internal/storage"
)

// Publisher announces outbox entries to the sync worker.
type Publisher interface {
	PublishAttendanceSync(ctx context.Context, id, version int64, key string) error
	Close() error
}

// AttendanceService stores staff writes in the local outbox and announces them.
type AttendanceService struct {
	storage   *storage.SQLiteRepository
	publisher Publisher
}

// NewAttendanceService wires the outbox with an optional publisher. Without one,
// entries wait for the next sweep.
func NewAttendanceService(storage *storage.SQLiteRepository, publisher Publisher) *AttendanceService {
	return &AttendanceService{
		storage:   storage,
		publisher: publisher,
	}
}

// Record validates e, saves it to the outbox and publishes a sync message. A publish
// failure is logged only: the entry is already saved and the sweep will pick it up.
func (s *AttendanceService) Record(ctx context.Context, e core.AttendanceEntry) (core.RecordReceipt, error) {
	e = e.Normalize()
	if err := e.Validate(); err != nil {
		return core.RecordReceipt{}, err
	}

	saved, err := s.storage.Enqueue(ctx, e)
	if err != nil {
		return core.RecordReceipt{}, fmt.Errorf("save attendance: %w", err)
	}
	metrics.OutboxEvents.WithLabelValues("queued").Inc()

	if err := s.publishSyncMessage(ctx, saved); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"outbox_id", saved.ID,
			"version", saved.Version,
			"error", err)
	}

	return core.RecordReceipt{
		Queued:   true,
		OutboxID: saved.ID,
		Version:  saved.Version,
		Key:      saved.MessageKey,
	}, nil
}

func (s *AttendanceService) publishSyncMessage(ctx context.Context, e storage.OutboxEntry) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No publisher configured, entry left for the sweep", "outbox_id", e.ID)
		return nil
	}
	return s.publisher.PublishAttendanceSync(ctx, e.ID, e.Version, e.MessageKey)
}

// Close closes both storage and publisher connections.
func (s *AttendanceService) Close() error {
	var errs []error

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close attendance service: %w", errors.Join(errs...))
	}
	return nil
}
