package main

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"edulink/internal/amqp"
	"edulink/internal/cli"
	"edulink/internal/config"
	"edulink/internal/log"
	"edulink/internal/notify"
	gsheet "edulink/internal/sheets/google"
	"edulink/internal/services"
	"edulink/internal/supabase"
	"edulink/internal/worker"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Warn("Failed to load .env", log.FieldError, err.Error())
	}

	cfg, err := cli.LoadConfig((*config.Config).ValidateWorker)
	if err != nil {
		cli.Fatal(log.New(log.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting edulink-worker", "queue", cfg.AMQPQueue)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		cli.Fatal(logger, "Failed to open outbox", err)
	}

	pusher, err := supabase.New(supabase.Config{
		URL:     cfg.SupabaseURL,
		AnonKey: cfg.SupabaseServiceKey,
		Timeout: cfg.SupabaseTimeout,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to create Supabase service client", err)
	}

	syncer := services.NewAttendanceSyncer(repo, pusher, services.SyncerConfig{
		BatchSize:  cfg.SyncBatchSize,
		MaxRetries: cfg.SyncMaxRetries,
	})

	if cfg.SheetsEnabled() {
		exporter, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets mirror", err)
		}
		syncer.WithExporter(exporter)
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}
	if cfg.SlackWebhookURL != "" {
		syncer.WithNotifier(notify.NewSlack(cfg.SlackWebhookURL, nil))
		logger.Info("Slack failure notifications enabled")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}

	syncWorker := worker.NewSyncWorker(syncer, cfg.SyncCleanupAge)
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", log.FieldError, err.Error())
	}

	scheduler := cron.New()
	if err := syncWorker.Schedule(ctx, scheduler, cfg.SyncSweepSchedule, cfg.SyncCleanupSchedule); err != nil {
		cli.Fatal(logger, "Failed to schedule sync jobs", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})
	g.Go(func() error {
		return amqpClient.ConsumeAttendanceSync(gctx, syncWorker.HandleSyncMessage)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
	}

	if stats, err := syncer.Stats(context.Background()); err == nil {
		logger.Info("Outbox at shutdown", "counts", stats)
	}
	err = cli.Shutdown(logger, 10*time.Second,
		func(context.Context) error { return amqpClient.Close() },
		func(context.Context) error { return repo.Close() },
	)
	if err != nil {
		logger.Error("Shutdown finished with errors", log.FieldError, err.Error())
	}
	logger.Info("Worker stopped")
}
