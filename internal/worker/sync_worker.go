package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"edulink/internal/amqp"
	"edulink/internal/services"
)

// SyncWorker consumes attendance sync messages and runs the scheduled sweeps.
type SyncWorker struct {
	syncer     *services.AttendanceSyncer
	cleanupAge time.Duration
	// jobTimeout bounds one scheduled run
	jobTimeout time.Duration
}

func NewSyncWorker(syncer *services.AttendanceSyncer, cleanupAge time.Duration) *SyncWorker {
	return &SyncWorker{
		syncer:     syncer,
		cleanupAge: cleanupAge,
		jobTimeout: 5 * time.Minute,
	}
}

// HandleSyncMessage processes a single attendance sync message from AMQP. Delivery
// failures are recorded on the outbox entry and acknowledged; only local storage
// errors cause a requeue.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.AttendanceSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"outbox_id", msg.ID,
		"version", msg.Version)

	outcome, err := w.syncer.SyncEntry(ctx, msg.ID, msg.Version)
	if err != nil {
		return fmt.Errorf("sync outbox entry %d: %w", msg.ID, err)
	}

	slog.InfoContext(ctx, "Sync message handled",
		"outbox_id", msg.ID,
		"version", msg.Version,
		"outcome", outcome,
		"queued_for", time.Since(msg.Timestamp).Round(time.Millisecond))
	return nil
}

// ProcessPending processes any entries whose messages were lost or failed.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	n, err := w.syncer.ProcessPending(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "Sweep delivered pending attendance", "count", n)
	}
	return nil
}

// StartupSyncCheck releases abandoned claims and delivers whatever is pending.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	slog.InfoContext(ctx, "Performing startup sync check")
	return w.syncer.StartupSyncCheck(ctx)
}

// Cleanup removes synced entries past the retention age.
func (w *SyncWorker) Cleanup(ctx context.Context) error {
	_, err := w.syncer.Cleanup(ctx, w.cleanupAge)
	return err
}

// Schedule registers the sweep and cleanup jobs on c.
func (w *SyncWorker) Schedule(ctx context.Context, c *cron.Cron, sweepExpr, cleanupExpr string) error {
	if _, err := c.AddFunc(sweepExpr, w.job(ctx, "sweep", w.ProcessPending)); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", sweepExpr, err)
	}
	if _, err := c.AddFunc(cleanupExpr, w.job(ctx, "cleanup", w.Cleanup)); err != nil {
		return fmt.Errorf("schedule cleanup %q: %w", cleanupExpr, err)
	}
	return nil
}

func (w *SyncWorker) job(ctx context.Context, name string, fn func(context.Context) error) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
		if err := fn(jobCtx); err != nil {
			slog.ErrorContext(jobCtx, "Scheduled job failed", "job", name, "error", err)
		}
	}
}
