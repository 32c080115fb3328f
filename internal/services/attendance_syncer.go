package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"edulink/internal/core"
	"edulink/internal/metrics"
	"edulink/internal/sheets"
	"edulink/internal/storage"
)

// AttendancePusher delivers an entry to the remote backend.
type AttendancePusher interface {
	SetAttendanceWithFeedback(ctx context.Context, e core.AttendanceEntry) error
}

// FailureNotifier is told about entries that will not be retried again.
type FailureNotifier interface {
	NotifySyncFailed(ctx context.Context, e storage.OutboxEntry, cause string) error
}

// SyncOutcome is what happened to one delivery attempt.
type SyncOutcome string

const (
	OutcomeSkipped  SyncOutcome = "skipped"
	OutcomeSynced   SyncOutcome = "synced"
	OutcomeRetrying SyncOutcome = "retrying"
	OutcomeFailed   SyncOutcome = "failed"
)

type SyncerConfig struct {
	BatchSize  int
	MaxRetries int
	// StaleAfter is how long a processing claim may sit before it is released.
	StaleAfter time.Duration
}

func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		BatchSize:  10,
		MaxRetries: 5,
		StaleAfter: 5 * time.Minute,
	}
}

// AttendanceSyncer moves outbox entries to the backend. Both the AMQP worker and
// the in-process processor drive it.
type AttendanceSyncer struct {
	storage  *storage.SQLiteRepository
	pusher   AttendancePusher
	exporter sheets.AttendanceExporter
	notifier FailureNotifier
	config   SyncerConfig
	now      func() time.Time
}

func NewAttendanceSyncer(storage *storage.SQLiteRepository, pusher AttendancePusher, config SyncerConfig) *AttendanceSyncer {
	def := DefaultSyncerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	return &AttendanceSyncer{storage: storage, pusher: pusher, config: config, now: time.Now}
}

// WithExporter mirrors every synced entry to a spreadsheet.
func (s *AttendanceSyncer) WithExporter(e sheets.AttendanceExporter) *AttendanceSyncer {
	s.exporter = e
	return s
}

// WithNotifier reports entries that ran out of retries.
func (s *AttendanceSyncer) WithNotifier(n FailureNotifier) *AttendanceSyncer {
	s.notifier = n
	return s
}

// SyncEntry delivers outbox entry id if it is still at version. Delivery failures are
// recorded on the entry and reported through the outcome; only local storage problems
// come back as errors.
func (s *AttendanceSyncer) SyncEntry(ctx context.Context, id, version int64) (SyncOutcome, error) {
	claimed, err := s.storage.Claim(ctx, id, version)
	if err != nil {
		return "", err
	}
	if !claimed {
		slog.DebugContext(ctx, "Outbox entry already handled or superseded", "outbox_id", id, "version", version)
		metrics.OutboxEvents.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}

	entry, err := s.storage.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load claimed entry: %w", err)
	}

	if err := s.pusher.SetAttendanceWithFeedback(ctx, entry.Entry); err != nil {
		return s.recordFailure(ctx, *entry, version, err)
	}

	if err := s.storage.MarkSynced(ctx, id, version); err != nil {
		return "", err
	}
	metrics.OutboxEvents.WithLabelValues(string(OutcomeSynced)).Inc()
	s.export(ctx, *entry)
	return OutcomeSynced, nil
}

func (s *AttendanceSyncer) recordFailure(ctx context.Context, entry storage.OutboxEntry, version int64, cause error) (SyncOutcome, error) {
	status, err := s.storage.MarkSyncError(ctx, entry.ID, version, cause.Error(), s.config.MaxRetries)
	if err != nil {
		return "", errors.Join(cause, err)
	}
	if status != storage.SyncFailed {
		metrics.OutboxEvents.WithLabelValues(string(OutcomeRetrying)).Inc()
		return OutcomeRetrying, nil
	}

	metrics.OutboxEvents.WithLabelValues(string(OutcomeFailed)).Inc()
	slog.ErrorContext(ctx, "Attendance sync failed permanently",
		"outbox_id", entry.ID,
		"student_id", entry.Entry.StudentID,
		"record_date", entry.Entry.Date.String(),
		"error", cause)
	if s.notifier != nil {
		if err := s.notifier.NotifySyncFailed(ctx, entry, cause.Error()); err != nil {
			slog.WarnContext(ctx, "Failed to send sync failure notification", "outbox_id", entry.ID, "error", err)
		}
	}
	return OutcomeFailed, nil
}

func (s *AttendanceSyncer) export(ctx context.Context, entry storage.OutboxEntry) {
	if s.exporter == nil {
		return
	}
	ref, err := s.exporter.AppendAttendance(ctx, entry.Entry, s.now())
	if err != nil {
		slog.WarnContext(ctx, "Failed to mirror attendance to Google Sheets", "outbox_id", entry.ID, "error", err)
		return
	}
	if err := s.storage.SetSheetsRef(ctx, entry.ID, ref); err != nil {
		slog.WarnContext(ctx, "Failed to remember sheets reference", "outbox_id", entry.ID, "error", err)
	}
}

// ProcessPending sweeps one batch of undelivered entries and returns how many synced.
// It backs up AMQP: anything whose message was lost is delivered here.
func (s *AttendanceSyncer) ProcessPending(ctx context.Context) (int, error) {
	pending, err := s.storage.ListPending(ctx, s.config.BatchSize, s.config.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending attendance", "count", len(pending))
	synced := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		outcome, err := s.SyncEntry(ctx, p.ID, p.Version)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to sync pending entry", "outbox_id", p.ID, "error", err)
			continue
		}
		if outcome == OutcomeSynced {
			synced++
		}
	}
	return synced, nil
}

// StartupSyncCheck releases claims left by a crashed run and sweeps once.
func (s *AttendanceSyncer) StartupSyncCheck(ctx context.Context) error {
	released, err := s.storage.ReleaseStale(ctx, s.config.StaleAfter)
	if err != nil {
		return err
	}
	if released > 0 {
		slog.WarnContext(ctx, "Released stale outbox claims", "count", released)
	}
	_, err = s.ProcessPending(ctx)
	return err
}

// Cleanup deletes synced entries older than age.
func (s *AttendanceSyncer) Cleanup(ctx context.Context, age time.Duration) (int64, error) {
	n, err := s.storage.CleanupSynced(ctx, age)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up synced attendance", "count", n)
	}
	return n, nil
}

// Stats returns outbox counts per status.
func (s *AttendanceSyncer) Stats(ctx context.Context) (map[storage.SyncStatus]int64, error) {
	return s.storage.Counts(ctx)
}
