package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"edulink/internal/amqp"
	"edulink/internal/core"
	"edulink/internal/services"
	"edulink/internal/storage"
)

type pusher struct {
	calls int
	err   error
}

func (p *pusher) SetAttendanceWithFeedback(context.Context, core.AttendanceEntry) error {
	p.calls++
	return p.err
}

func setup(t *testing.T, p *pusher) (*SyncWorker, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "w.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	syncer := services.NewAttendanceSyncer(repo, p, services.SyncerConfig{MaxRetries: 3})
	return NewSyncWorker(syncer, time.Hour), repo
}

func enqueue(t *testing.T, repo *storage.SQLiteRepository) storage.OutboxEntry {
	t.Helper()
	e, err := repo.Enqueue(context.Background(), core.AttendanceEntry{
		ClassID: "c1", StudentID: "s1", Date: core.NewDate(2024, 3, 15), Status: core.StatusPresent,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestHandleSyncMessage(t *testing.T) {
	p := &pusher{}
	w, repo := setup(t, p)
	e := enqueue(t, repo)

	msg := amqp.NewAttendanceSyncMessage(e.ID, e.Version, e.MessageKey)
	if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleSyncMessage() error = %v", err)
	}
	got, _ := repo.Get(context.Background(), e.ID)
	if got.Status != storage.SyncSynced || p.calls != 1 {
		t.Errorf("status = %s, calls = %d", got.Status, p.calls)
	}
}

func TestHandleSyncMessageAcksRemoteFailure(t *testing.T) {
	p := &pusher{err: errors.New("remote down")}
	w, repo := setup(t, p)
	e := enqueue(t, repo)

	err := w.HandleSyncMessage(context.Background(), amqp.NewAttendanceSyncMessage(e.ID, e.Version, ""))
	if err != nil {
		t.Fatalf("a remote failure should be recorded, not requeued: %v", err)
	}
	got, _ := repo.Get(context.Background(), e.ID)
	if got.Status != storage.SyncError || got.Retries != 1 {
		t.Errorf("entry = %+v", got)
	}
}

func TestProcessPendingAndCleanup(t *testing.T) {
	p := &pusher{}
	w, repo := setup(t, p)
	enqueue(t, repo)

	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatalf("StartupSyncCheck() error = %v", err)
	}
	if err := w.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
	if err := w.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
}

func TestSchedule(t *testing.T) {
	w, _ := setup(t, &pusher{})
	c := cron.New()

	if err := w.Schedule(context.Background(), c, "@every 1m", "@hourly"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(c.Entries()) != 2 {
		t.Errorf("entries = %d, want 2", len(c.Entries()))
	}
	if err := w.Schedule(context.Background(), cron.New(), "not a schedule", "@hourly"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestJobSkipsAfterCancel(t *testing.T) {
	w, _ := setup(t, &pusher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	w.job(ctx, "x", func(context.Context) error { ran = true; return nil })()
	if ran {
		t.Error("job must not run after shutdown")
	}
}
