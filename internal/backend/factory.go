package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"edulink/internal/adapters"
	"edulink/internal/amqp"
	"edulink/internal/backend/memory"
	"edulink/internal/services"
	"edulink/internal/storage"
	"edulink/internal/supabase"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the backend, the recorder staff writes go through and an
// optional cleanup function.
type BackendResult struct {
	Backend  Backend
	Recorder Recorder
	// Processor is set when the outbox is drained in-process; the caller starts it.
	Processor *services.SyncProcessor
	// Outbox is set when staff writes are queued locally.
	Outbox  *storage.SQLiteRepository
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger     *slog.Logger
	httpClient *http.Client
}

func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// WithHTTPClient sets the client used for Supabase calls.
func (f *DefaultFactory) WithHTTPClient(c *http.Client) *DefaultFactory {
	f.httpClient = c
	return f
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		b   Backend
		err error
	)
	switch config.Type {
	case SupabaseBackend:
		b, err = f.createSupabaseBackend(config)
	case MemoryBackend:
		b, err = f.createMemoryBackend(config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.SQLiteDBPath == "" {
		f.logger.Info("Attendance writes go straight to the backend")
		return &BackendResult{Backend: b, Recorder: adapters.NewDirectRecorder(b)}, nil
	}
	return f.withOutbox(ctx, b, config)
}

func (f *DefaultFactory) createSupabaseBackend(config Config) (Backend, error) {
	client, err := supabase.New(supabase.Config{
		URL:        config.SupabaseURL,
		AnonKey:    config.SupabaseAnonKey,
		Timeout:    config.SupabaseTimeout,
		HTTPClient: f.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Supabase client: %w", err)
	}
	f.logger.Info("Initialized Supabase backend", "url", config.SupabaseURL)
	return client, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (Backend, error) {
	store, err := memory.NewFromFile(config.MemorySeedFile, config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile)
	return store, nil
}

func (f *DefaultFactory) withOutbox(ctx context.Context, b Backend, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite outbox: %w", err)
	}

	// a nil *amqp.Client must not become a non-nil Publisher
	var publisher services.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, falling back to in-process sync", "error", err)
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	service := services.NewAttendanceService(repo, publisher)
	result := &BackendResult{
		Backend:  b,
		Recorder: service,
		Outbox:   repo,
		Cleanup:  service.Close,
	}

	if publisher == nil {
		pusher, err := f.pusher(b, config)
		if err != nil {
			service.Close()
			return nil, err
		}
		syncer := services.NewAttendanceSyncer(repo, pusher, services.SyncerConfig{
			BatchSize:  config.SyncBatchSize,
			MaxRetries: config.SyncMaxRetries,
		})
		result.Processor = services.NewSyncProcessor(syncer, services.SyncProcessorConfig{
			PollInterval: config.SyncInterval,
			CleanupAge:   config.SyncCleanupAge,
		})
	}

	f.logger.InfoContext(ctx, "Initialized attendance outbox",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)
	return result, nil
}

// pusher returns what outbox deliveries write through: a service-key client for
// Supabase when one is configured, the backend itself otherwise.
func (f *DefaultFactory) pusher(b Backend, config Config) (services.AttendancePusher, error) {
	if config.Type != SupabaseBackend || config.SupabaseServiceKey == "" {
		if config.Type == SupabaseBackend {
			f.logger.Warn("No SUPABASE_SERVICE_KEY set, outbox deliveries use the anon key")
		}
		return b, nil
	}
	client, err := supabase.New(supabase.Config{
		URL:        config.SupabaseURL,
		AnonKey:    config.SupabaseServiceKey,
		Timeout:    config.SupabaseTimeout,
		HTTPClient: f.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Supabase service client: %w", err)
	}
	return client, nil
}

// Close runs the cleanup function if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	if err := r.Cleanup(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
