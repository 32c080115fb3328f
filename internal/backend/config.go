package backend

import (
	"fmt"
	"time"

	"edulink/internal/config"
)

// BackendType selects the remote store implementation.
type BackendType string

const (
	SupabaseBackend BackendType = "supabase"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SupabaseBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds what the factory needs to assemble a backend.
type Config struct {
	Type BackendType

	// Supabase
	SupabaseURL     string
	SupabaseAnonKey string
	SupabaseTimeout time.Duration

	// SupabaseServiceKey, when set, authorizes outbox deliveries instead of the anon key.
	SupabaseServiceKey string

	// Memory
	MemorySeedFile string
	Location       *time.Location

	// Outbox; empty SQLiteDBPath writes straight to the backend
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// In-process sync loop, used when no AMQP URL is set
	SyncBatchSize  int
	SyncMaxRetries int
	SyncInterval   time.Duration
	SyncCleanupAge time.Duration
}

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.BackendType)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.BackendType)
	}

	loc, err := appConfig.Location()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Type: backendType,

		SupabaseURL:     appConfig.SupabaseURL,
		SupabaseAnonKey: appConfig.SupabaseAnonKey,
		SupabaseTimeout: appConfig.SupabaseTimeout,

		SupabaseServiceKey: appConfig.SupabaseServiceKey,

		MemorySeedFile: appConfig.MemorySeedFile,
		Location:       loc,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		SyncBatchSize:  appConfig.SyncBatchSize,
		SyncMaxRetries: appConfig.SyncMaxRetries,
		SyncInterval:   appConfig.SyncInterval,
		SyncCleanupAge: appConfig.SyncCleanupAge,
	}, nil
}

// Validate validates the backend configuration.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SupabaseBackend:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return fmt.Errorf("supabase URL and anon key are required for supabase backend")
		}
	case MemoryBackend:
		// seed file is optional; a demo dataset is used without one
	}

	if c.SQLiteDBPath != "" && c.AMQPURL == "" && c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive when the outbox runs without AMQP")
	}
	return nil
}

// GetBackendTypes returns all valid backend types.
func GetBackendTypes() []BackendType {
	return []BackendType{SupabaseBackend, MemoryBackend}
}
