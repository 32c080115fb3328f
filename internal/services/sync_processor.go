package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Syncer is the part of AttendanceSyncer the processor drives.
type Syncer interface {
	StartupSyncCheck(ctx context.Context) error
	ProcessPending(ctx context.Context) (int, error)
	Cleanup(ctx context.Context, age time.Duration) (int64, error)
}

var ErrProcessorRunning = errors.New("sync processor is already running")

type SyncProcessorConfig struct {
	PollInterval    time.Duration // outbox sweep period, default 30s
	CleanupInterval time.Duration // default 1h
	CleanupAge      time.Duration // synced rows older than this are deleted, default 7 days
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    30 * time.Second,
		CleanupInterval: time.Hour,
		CleanupAge:      7 * 24 * time.Hour,
	}
}

// SyncProcessor sweeps the outbox on a ticker from inside the web process. It is
// used instead of the AMQP worker when no broker is configured.
type SyncProcessor struct {
	syncer Syncer
	config SyncProcessorConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSyncProcessor(syncer Syncer, config SyncProcessorConfig) *SyncProcessor {
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.CleanupAge <= 0 {
		config.CleanupAge = def.CleanupAge
	}
	return &SyncProcessor{syncer: syncer, config: config}
}

// Start runs a startup sweep and then the poll loop in the background. The loop
// ends when ctx is cancelled or Stop is called.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrProcessorRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(loopCtx, p.done)

	slog.InfoContext(ctx, "Outbox sync processor started",
		"poll_interval", p.config.PollInterval,
		"cleanup_interval", p.config.CleanupInterval,
		"cleanup_age", p.config.CleanupAge)
	return nil
}

// Stop cancels the loop, including a sweep in progress, and waits for it to exit
// or for ctx to end. A stopped processor can be started again.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		slog.WarnContext(ctx, "Outbox sync processor did not stop in time")
		return ctx.Err()
	}

	p.mu.Lock()
	if p.done == done {
		p.cancel, p.done = nil, nil
	}
	p.mu.Unlock()
	slog.InfoContext(ctx, "Outbox sync processor stopped")
	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *SyncProcessor) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	if err := p.syncer.StartupSyncCheck(ctx); err != nil && ctx.Err() == nil {
		slog.WarnContext(ctx, "Startup outbox sweep failed", "error", err)
	}

	sweep := time.NewTicker(p.config.PollInterval)
	defer sweep.Stop()
	cleanup := time.NewTicker(p.config.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if _, err := p.syncer.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Outbox sweep failed", "error", err)
			}
		case <-cleanup.C:
			if _, err := p.syncer.Cleanup(ctx, p.config.CleanupAge); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Outbox cleanup failed", "error", err)
			}
		}
	}
}
