// Package config loads and validates pricewatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// MonitorConfig governs the scheduled monitoring pass.
type MonitorConfig struct {
	PollIntervalSeconds      int    `mapstructure:"poll_interval_seconds"`
	MaxConcurrentFetches     int    `mapstructure:"max_concurrent_fetches"`
	MinDelayBetweenFetchesMs int    `mapstructure:"min_delay_between_fetches_ms"`
	FetchTimeoutSeconds      int    `mapstructure:"fetch_timeout_seconds"`
	NotifyTimeoutSeconds     int    `mapstructure:"notify_timeout_seconds"`
	MaxBodyBytes             int    `mapstructure:"max_body_bytes"`
	UserAgent                string `mapstructure:"user_agent"`
	RunOnStart               bool   `mapstructure:"run_on_start"`
}

// StorageConfig selects the rule store backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig selects where pages that no longer parse are kept.
type ArchiveConfig struct {
	Driver    string `mapstructure:"driver"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifierConfig selects the delivery channel.
type NotifierConfig struct {
	Driver string `mapstructure:"driver"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelegramConfig configures the bot client.
type TelegramConfig struct {
	BotToken       string `mapstructure:"bot_token"`
	APIBase        string `mapstructure:"api_base"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Storage, archive and notifier drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"
	DriverLocal    = "local"
	DriverGCS      = "gcs"
	DriverLog      = "log"
	DriverPubSub   = "pubsub"
	DriverTelegram = "telegram"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %w", alert.ErrConfiguration, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %w", alert.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("monitor.poll_interval_seconds", 900)
	v.SetDefault("monitor.max_concurrent_fetches", 5)
	v.SetDefault("monitor.min_delay_between_fetches_ms", 400)
	v.SetDefault("monitor.fetch_timeout_seconds", 15)
	v.SetDefault("monitor.notify_timeout_seconds", 10)
	v.SetDefault("monitor.max_body_bytes", 5<<20)
	v.SetDefault("monitor.user_agent", "")
	v.SetDefault("monitor.run_on_start", true)
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "alert_rules")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 60)
	v.SetDefault("sqlite.path", "pricewatch.db")
	v.SetDefault("archive.driver", DriverNone)
	v.SetDefault("archive.base_dir", "drift")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "drift")
	v.SetDefault("notifier.driver", DriverLog)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.api_base", "")
	v.SetDefault("telegram.timeout_seconds", 10)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", alert.ErrConfiguration, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Monitor.PollIntervalSeconds <= 0 {
		return fmt.Errorf("monitor.poll_interval_seconds must be > 0")
	}
	if c.Monitor.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("monitor.max_concurrent_fetches must be > 0")
	}
	if c.Monitor.MinDelayBetweenFetchesMs < 0 {
		return fmt.Errorf("monitor.min_delay_between_fetches_ms must be >= 0")
	}
	if c.Monitor.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("monitor.fetch_timeout_seconds must be > 0")
	}
	if c.Monitor.NotifyTimeoutSeconds < 0 {
		return fmt.Errorf("monitor.notify_timeout_seconds must be >= 0")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Archive.Driver {
	case DriverNone, DriverMemory:
	case DriverLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local driver")
		}
	case DriverGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs driver")
		}
	default:
		return fmt.Errorf("unknown archive.driver %q", c.Archive.Driver)
	}

	switch c.Notifier.Driver {
	case DriverLog, DriverMemory:
	case DriverPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set for the pubsub notifier")
		}
	case DriverTelegram:
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token must be set for the telegram notifier")
		}
	default:
		return fmt.Errorf("unknown notifier.driver %q", c.Notifier.Driver)
	}
	return nil
}

// PollInterval is the target time between pass starts.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalSeconds) * time.Second
}

// FetchTimeout bounds a single product page fetch.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Monitor.FetchTimeoutSeconds) * time.Second
}

// NotifyTimeout bounds one notification delivery.
func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Monitor.NotifyTimeoutSeconds) * time.Second
}

// MinFetchDelay is the minimum spacing between fetch starts.
func (c Config) MinFetchDelay() time.Duration {
	return time.Duration(c.Monitor.MinDelayBetweenFetchesMs) * time.Millisecond
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
