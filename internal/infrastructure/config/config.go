package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration.
type Config struct {
	Bridge    BridgeConfig
	Lifecycle LifecycleConfig
	Engine    EngineConfig
	Storage   StorageConfig
	Settings  SettingsConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// BridgeConfig holds the HTTP + websocket bridge listener configuration.
type BridgeConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// LifecycleConfig holds tab lifecycle scheduler and mutation-queue tuning.
type LifecycleConfig struct {
	WarmBudget     int `envconfig:"WARM_BUDGET" default:"8"`
	QueueCapacity  int `envconfig:"QUEUE_CAPACITY" default:"256"`
	ResyncRingSize int `envconfig:"RESYNC_RING_SIZE" default:"64"`
}

// EngineConfig holds the engine resource manager's dial target. The
// in-process simulated host is always used; a non-empty target only
// produces a warning at boot.
type EngineConfig struct {
	DialTarget string `envconfig:"ENGINE_ADDR" default:""`
}

// StorageConfig holds the persistence adapter's location and behavior.
type StorageConfig struct {
	DataDir            string `envconfig:"DATA_DIR" default:"./data"`
	SQLitePath         string `envconfig:"SQLITE_PATH" default:"./data/supervisor.db"`
	ThumbnailMaxWidth  int    `envconfig:"THUMBNAIL_MAX_WIDTH" default:"320"`
	ThumbnailMaxHeight int    `envconfig:"THUMBNAIL_MAX_HEIGHT" default:"200"`
}

// SettingsConfig holds the bundled default-settings seed file location.
type SettingsConfig struct {
	DefaultsPath string `envconfig:"SETTINGS_DEFAULTS_PATH" default:"./config/settings.defaults.yaml"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds bridge request rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"200"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"400"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Port: "8000",
			Host: "127.0.0.1",
		},
		Lifecycle: LifecycleConfig{
			WarmBudget:     8,
			QueueCapacity:  256,
			ResyncRingSize: 64,
		},
		Engine: EngineConfig{
			DialTarget: "",
		},
		Storage: StorageConfig{
			DataDir:            "./data",
			SQLitePath:         "./data/supervisor.db",
			ThumbnailMaxWidth:  320,
			ThumbnailMaxHeight: 200,
		},
		Settings: SettingsConfig{
			DefaultsPath: "./config/settings.defaults.yaml",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 200,
			Burst:             400,
			Enabled:           true,
		},
	}
}
