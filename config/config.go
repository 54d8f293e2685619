package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Feed modes accepted by sync.mode.
const (
	FeedModePoll   = "poll"
	FeedModePush   = "push"
	FeedModeHybrid = "hybrid"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Sync       SyncConfig       `yaml:"sync"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Database   DatabaseConfig   `yaml:"database"`
	Local      LocalConfig      `yaml:"local"`
	Session    SessionConfig    `yaml:"session"`
	History    HistoryConfig    `yaml:"history"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
	// ClickURL is the dashboard path opened from a notification.
	ClickURL string `yaml:"click_url"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// SyncConfig controls how the active unit's snapshot is kept fresh.
type SyncConfig struct {
	Mode                string        `yaml:"mode"`
	PollIntervalMs      int           `yaml:"poll_interval_ms"`
	PollInterval        time.Duration `yaml:"-"`
	SuppressionWindowMs int           `yaml:"suppression_window_ms"`
	SuppressionWindow   time.Duration `yaml:"-"`
	FetchTimeoutMs      int           `yaml:"fetch_timeout_ms"`
	FetchTimeout        time.Duration `yaml:"-"`
}

// RealtimeConfig describes the websocket change feed used in push and hybrid mode.
type RealtimeConfig struct {
	URL                string            `yaml:"url"`
	Headers            map[string]string `yaml:"headers"`
	ReadTimeoutSeconds int               `yaml:"read_timeout_seconds"`
	ReadTimeout        time.Duration     `yaml:"-"`
}

// DatabaseConfig holds the remote database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	AutoMigrate            bool   `yaml:"auto_migrate"`
	EnableRealtime         bool   `yaml:"enable_realtime"`
}

// LocalConfig points at the on-disk database holding client-side preferences.
type LocalConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig carries the authenticated operator identity.
type SessionConfig struct {
	OperatorID string `yaml:"operator_id"`
}

// HistoryConfig controls how aggregate windows are computed.
type HistoryConfig struct {
	Timezone string `yaml:"timezone"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	switch cfg.Sync.Mode {
	case "":
		cfg.Sync.Mode = FeedModePoll
	case FeedModePoll, FeedModePush, FeedModeHybrid:
	default:
		return fmt.Errorf("sync.mode %q is not one of poll, push, hybrid", cfg.Sync.Mode)
	}
	if cfg.Sync.Mode != FeedModePoll && cfg.Realtime.URL == "" {
		return fmt.Errorf("sync.mode %q requires realtime.url", cfg.Sync.Mode)
	}

	if cfg.Sync.PollIntervalMs <= 0 {
		cfg.Sync.PollIntervalMs = 3000
	}
	cfg.Sync.PollInterval = time.Duration(cfg.Sync.PollIntervalMs) * time.Millisecond

	if cfg.Sync.SuppressionWindowMs <= 0 {
		cfg.Sync.SuppressionWindowMs = 5000
	}
	cfg.Sync.SuppressionWindow = time.Duration(cfg.Sync.SuppressionWindowMs) * time.Millisecond

	if cfg.Sync.FetchTimeoutMs <= 0 {
		cfg.Sync.FetchTimeoutMs = 10000
	}
	cfg.Sync.FetchTimeout = time.Duration(cfg.Sync.FetchTimeoutMs) * time.Millisecond

	if cfg.Realtime.ReadTimeoutSeconds <= 0 {
		cfg.Realtime.ReadTimeoutSeconds = 60
	}
	cfg.Realtime.ReadTimeout = time.Duration(cfg.Realtime.ReadTimeoutSeconds) * time.Second

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Local.Path == "" {
		cfg.Local.Path = "./aquaflow-local.db"
	}

	if cfg.History.Timezone == "" {
		cfg.History.Timezone = "Local"
	}
	if _, err := time.LoadLocation(cfg.History.Timezone); err != nil {
		return fmt.Errorf("history.timezone %q: %w", cfg.History.Timezone, err)
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.ClickURL == "" {
		cfg.Push.ClickURL = "/alerts"
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = cfg.WorkerPool.Size * 16
	}
	return nil
}

// Location returns the timezone used for start-of-day aggregation.
func (h HistoryConfig) Location() *time.Location {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
