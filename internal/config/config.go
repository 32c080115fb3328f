package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

type Config struct {
	// HTTP Server
	Port               string `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	CookieSecure       bool   `yaml:"cookie_secure"`

	// Backend selection: "supabase" or "memory"
	BackendType    string `yaml:"backend_type"`
	MemorySeedFile string `yaml:"memory_seed_file"`

	// Supabase
	SupabaseURL       string        `yaml:"supabase_url"`
	SupabaseAnonKey   string        `yaml:"supabase_anon_key"`
	SupabaseJWTSecret string        `yaml:"supabase_jwt_secret"`
	SupabaseTimeout   time.Duration `yaml:"supabase_timeout"`

	// SupabaseServiceKey authorizes outbox deliveries, which run without a staff session.
	SupabaseServiceKey string `yaml:"supabase_service_key"`

	// Parent overview
	ParentWebOrigin    string        `yaml:"parent_web_origin"`
	Timezone           string        `yaml:"timezone"`
	RecentLimit        int           `yaml:"recent_limit"`
	InflightTTL        time.Duration `yaml:"inflight_ttl"`
	ParentLinkCacheTTL time.Duration `yaml:"parent_link_cache_ttl"`

	// Redis (optional, shares the in-flight guard across instances)
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Attendance outbox
	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// AMQP (optional for the web process, required by the worker)
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Sync
	SyncBatchSize       int           `yaml:"sync_batch_size"`
	SyncMaxRetries      int           `yaml:"sync_max_retries"`
	SyncInterval        time.Duration `yaml:"sync_interval"`
	SyncSweepSchedule   string        `yaml:"sync_sweep_schedule"`
	SyncCleanupSchedule string        `yaml:"sync_cleanup_schedule"`
	SyncCleanupAge      time.Duration `yaml:"sync_cleanup_age"`

	// Google Sheets mirror (optional)
	GoogleSpreadsheetID      string `yaml:"google_spreadsheet_id"`
	GoogleSheetName          string `yaml:"google_sheet_name"`
	GoogleServiceAccountJSON string `yaml:"google_service_account_json"`
	GoogleServiceAccountFile string `yaml:"google_service_account_file"`

	// Notifications (optional)
	SlackWebhookURL string `yaml:"slack_webhook_url"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the configuration used when neither file nor environment set a value.
func Defaults() Config {
	return Config{
		Port:                "8080",
		RateLimitPerMinute:  60,
		BackendType:         "memory",
		SupabaseTimeout:     10 * time.Second,
		Timezone:            "Local",
		RecentLimit:         5,
		InflightTTL:         15 * time.Second,
		ParentLinkCacheTTL:  10 * time.Minute,
		SQLiteDBPath:        "./data/edulink.db",
		AMQPExchange:        "edulink",
		AMQPQueue:           "sync_attendance",
		SyncBatchSize:       10,
		SyncMaxRetries:      5,
		SyncInterval:        30 * time.Second,
		SyncSweepSchedule:   "@every 1m",
		SyncCleanupSchedule: "@hourly",
		SyncCleanupAge:      7 * 24 * time.Hour,
		GoogleSheetName:     "Attendance",
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Load reads CONFIG_PATH (or ./config.yaml when present) and applies environment
// overrides on top. A missing default file is not an error; a missing explicit one is.
func Load() (*Config, error) {
	cfg := Defaults()

	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(c *Config) {
	envOverride(&c.Port, "PORT")
	envOverrideInt(&c.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
	envOverrideBool(&c.CookieSecure, "COOKIE_SECURE")
	envOverride(&c.BackendType, "BACKEND_TYPE")
	envOverride(&c.MemorySeedFile, "MEMORY_SEED_FILE")

	envOverride(&c.SupabaseURL, "SUPABASE_URL")
	envOverride(&c.SupabaseAnonKey, "SUPABASE_ANON_KEY")
	envOverride(&c.SupabaseJWTSecret, "SUPABASE_JWT_SECRET")
	envOverrideDuration(&c.SupabaseTimeout, "SUPABASE_TIMEOUT")
	envOverride(&c.SupabaseServiceKey, "SUPABASE_SERVICE_KEY")

	envOverride(&c.ParentWebOrigin, "PARENT_WEB_ORIGIN")
	envOverride(&c.Timezone, "TIMEZONE")
	envOverrideInt(&c.RecentLimit, "RECENT_LIMIT")
	envOverrideDuration(&c.InflightTTL, "INFLIGHT_TTL")
	envOverrideDuration(&c.ParentLinkCacheTTL, "PARENT_LINK_CACHE_TTL")

	envOverride(&c.RedisAddr, "REDIS_ADDR")
	envOverride(&c.RedisPassword, "REDIS_PASSWORD")
	envOverrideInt(&c.RedisDB, "REDIS_DB")

	envOverride(&c.SQLiteDBPath, "SQLITE_DB_PATH")
	envOverride(&c.AMQPURL, "AMQP_URL")
	envOverride(&c.AMQPExchange, "AMQP_EXCHANGE")
	envOverride(&c.AMQPQueue, "AMQP_QUEUE")

	envOverrideInt(&c.SyncBatchSize, "SYNC_BATCH_SIZE")
	envOverrideInt(&c.SyncMaxRetries, "SYNC_MAX_RETRIES")
	envOverrideDuration(&c.SyncInterval, "SYNC_INTERVAL")
	envOverride(&c.SyncSweepSchedule, "SYNC_SWEEP_SCHEDULE")
	envOverride(&c.SyncCleanupSchedule, "SYNC_CLEANUP_SCHEDULE")
	envOverrideDuration(&c.SyncCleanupAge, "SYNC_CLEANUP_AGE")

	envOverride(&c.GoogleSpreadsheetID, "GOOGLE_SPREADSHEET_ID")
	envOverride(&c.GoogleSheetName, "GOOGLE_SHEET_NAME")
	envOverride(&c.GoogleServiceAccountJSON, "GOOGLE_SERVICE_ACCOUNT_JSON")
	envOverride(&c.GoogleServiceAccountFile, "GOOGLE_SERVICE_ACCOUNT_FILE")

	envOverride(&c.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	envOverride(&c.LogLevel, "LOG_LEVEL")
	envOverride(&c.LogFormat, "LOG_FORMAT")
}

// Location resolves Timezone. "Local" and "" mean the process time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// SheetsEnabled reports whether synced entries are mirrored to Google Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// StaffAPIEnabled reports whether staff endpoints can verify access tokens.
func (c *Config) StaffAPIEnabled() bool {
	return c.SupabaseJWTSecret != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.BackendType {
	case "supabase":
		if c.SupabaseURL == "" {
			errs = append(errs, "SUPABASE_URL is required when using supabase backend")
		} else if u, err := url.Parse(c.SupabaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid SUPABASE_URL '%s': must be an http(s) URL", c.SupabaseURL))
		}
		if c.SupabaseAnonKey == "" {
			errs = append(errs, "SUPABASE_ANON_KEY is required when using supabase backend")
		}
	case "memory":
		if c.MemorySeedFile != "" {
			if _, err := os.Stat(c.MemorySeedFile); err != nil {
				errs = append(errs, fmt.Sprintf("memory seed file not readable: %s", c.MemorySeedFile))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid backend type '%s': must be one of [supabase memory]", c.BackendType))
	}

	if c.SupabaseTimeout < 100*time.Millisecond || c.SupabaseTimeout > 2*time.Minute {
		errs = append(errs, fmt.Sprintf("invalid supabase timeout %v: must be between 100ms and 2m", c.SupabaseTimeout))
	}

	if c.ParentWebOrigin != "" {
		if u, err := url.Parse(c.ParentWebOrigin); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid PARENT_WEB_ORIGIN '%s': must be an absolute URL", c.ParentWebOrigin))
		}
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}
	if c.RecentLimit < 1 || c.RecentLimit > 50 {
		errs = append(errs, fmt.Sprintf("invalid recent limit %d: must be between 1 and 50", c.RecentLimit))
	}
	if c.InflightTTL < time.Second {
		errs = append(errs, fmt.Sprintf("invalid in-flight TTL %v: must be at least 1 second", c.InflightTTL))
	}
	// the guard must outlive the remote call it protects
	if c.InflightTTL < c.SupabaseTimeout {
		errs = append(errs, fmt.Sprintf("invalid in-flight TTL %v: must be at least the supabase timeout %v", c.InflightTTL, c.SupabaseTimeout))
	}
	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	if c.SQLiteDBPath != "" {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SyncBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	if c.SyncMaxRetries < 1 {
		errs = append(errs, fmt.Sprintf("invalid sync max retries %d: must be at least 1", c.SyncMaxRetries))
	}
	if c.SyncInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	for name, expr := range map[string]string{"sync sweep": c.SyncSweepSchedule, "sync cleanup": c.SyncCleanupSchedule} {
		if _, err := cron.ParseStandard(expr); err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s schedule '%s': %v", name, expr, err))
		}
	}
	if c.SyncCleanupAge < time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync cleanup age %v: must be at least 1 hour", c.SyncCleanupAge))
	}

	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errs = append(errs, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the Sheets mirror")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.SlackWebhookURL != "" && !strings.HasPrefix(c.SlackWebhookURL, "https://") {
		errs = append(errs, "SLACK_WEBHOOK_URL must be an https URL")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateWorker adds the requirements of the sync worker process.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	var errs []string
	if c.BackendType != "supabase" {
		errs = append(errs, "worker requires BACKEND_TYPE=supabase")
	}
	if c.SQLiteDBPath == "" {
		errs = append(errs, "worker requires SQLITE_DB_PATH")
	}
	if c.AMQPURL == "" {
		errs = append(errs, "worker requires AMQP_URL")
	}
	if c.SupabaseServiceKey == "" {
		errs = append(errs, "worker requires SUPABASE_SERVICE_KEY")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envOverrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envOverrideDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
