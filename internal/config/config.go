package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

var (
	ErrInvalidStoreDriver = errors.New("invalid store driver")
	ErrInvalidTimeout     = errors.New("dispatch timeout must be positive")
	ErrInvalidBatch       = errors.New("dispatch batch must be positive")
	ErrInvalidReapMargin  = errors.New("reap margin must not be negative")
)

// Config holds service configuration.
type Config struct {
	StoreDriver      string
	DatabaseURL      string
	SQLitePath       string
	MigrationsDir    string
	ServerAddr       string
	DispatchTimeout  time.Duration
	ReapMargin       time.Duration
	DispatchSchedule string
	DispatchBatch    int
	ContentDir       string
	NotifyWebhookURL string
	LogLevel         string
	OTelEnabled      bool
	OTelServiceName  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("POSTGRES_USER", "agentdesk")
	v.SetDefault("POSTGRES_PASSWORD", "agentdesk_pass")
	v.SetDefault("POSTGRES_DB", "agentdesk")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "./data/agentdesk.db")
	v.SetDefault("MIGRATIONS_DIR", "internal/migrations")
	v.SetDefault("SERVER_ADDR", "0.0.0.0:8080")
	v.SetDefault("DISPATCH_TIMEOUT", "2m")
	v.SetDefault("DISPATCH_REAP_MARGIN", "1m")
	v.SetDefault("DISPATCH_SCHEDULE", "@every 10s")
	v.SetDefault("DISPATCH_BATCH", 10)
	v.SetDefault("CONTENT_DIR", "./workspace")
	v.SetDefault("NOTIFY_WEBHOOK_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "agentdesk")
}

// Load reads configuration from defaults, an optional config file, and the
// environment, in increasing precedence. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// An empty DISPATCH_SCHEDULE disables the scheduler, so empty values count.
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	dsn := v.GetString("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			v.GetString("POSTGRES_USER"), v.GetString("POSTGRES_PASSWORD"),
			v.GetString("POSTGRES_HOST"), v.GetString("POSTGRES_PORT"),
			v.GetString("POSTGRES_DB"), v.GetString("DATABASE_SSLMODE"))
	}

	timeout, err := time.ParseDuration(v.GetString("DISPATCH_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeout, err)
	}

	margin, err := time.ParseDuration(v.GetString("DISPATCH_REAP_MARGIN"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReapMargin, err)
	}

	cfg := &Config{
		StoreDriver:      strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		DatabaseURL:      dsn,
		SQLitePath:       v.GetString("SQLITE_PATH"),
		MigrationsDir:    v.GetString("MIGRATIONS_DIR"),
		ServerAddr:       v.GetString("SERVER_ADDR"),
		DispatchTimeout:  timeout,
		ReapMargin:       margin,
		DispatchSchedule: strings.TrimSpace(v.GetString("DISPATCH_SCHEDULE")),
		DispatchBatch:    v.GetInt("DISPATCH_BATCH"),
		ContentDir:       v.GetString("CONTENT_DIR"),
		NotifyWebhookURL: v.GetString("NOTIFY_WEBHOOK_URL"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		OTelEnabled:      v.GetBool("OTEL_ENABLED"),
		OTelServiceName:  v.GetString("OTEL_SERVICE_NAME"),
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by parsing.
func Validate(cfg *Config) error {
	switch cfg.StoreDriver {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStoreDriver, cfg.StoreDriver)
	}
	if cfg.DispatchTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if cfg.ReapMargin < 0 {
		return ErrInvalidReapMargin
	}
	if cfg.DispatchBatch <= 0 {
		return ErrInvalidBatch
	}
	return nil
}
