// Package config loads application configuration from a YAML file with
// WATCHDESK_* environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Feed          FeedConfig          `mapstructure:"feed"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Trigger       TriggerConfig       `mapstructure:"trigger"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Oracle        OracleConfig        `mapstructure:"oracle"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	App           AppConfig           `mapstructure:"app"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// FeedConfig holds the upstream websocket feed settings.
type FeedConfig struct {
	Endpoint             string        `mapstructure:"endpoint"`
	ReconnectBase        time.Duration `mapstructure:"reconnect_base"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
}

// SubscriptionsConfig holds the subscription batcher settings.
type SubscriptionsConfig struct {
	DrainInterval time.Duration `mapstructure:"drain_interval"`
}

// TriggerConfig holds the trigger evaluator settings.
type TriggerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// StorageConfig selects and configures the persistence sink.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "memory" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// OracleConfig holds the SOL/USD price source settings.
type OracleConfig struct {
	URL      string        `mapstructure:"url"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// AppConfig seeds the runtime-togglable settings row on first start.
type AppConfig struct {
	AutoResubscribe       bool `mapstructure:"auto_resubscribe"`
	DetailedLogging       bool `mapstructure:"detailed_logging"`
	PruneThresholdMinutes int  `mapstructure:"prune_threshold_minutes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the given file plus environment
// overrides. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("WATCHDESK")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.endpoint", "wss://pumpportal.fun/api/data")
	v.SetDefault("feed.reconnect_base", "5s")
	v.SetDefault("feed.max_reconnect_attempts", 5)
	v.SetDefault("feed.handshake_timeout", "10s")
	v.SetDefault("feed.write_timeout", "10s")

	v.SetDefault("subscriptions.drain_interval", "2s")
	v.SetDefault("trigger.tick_interval", "100ms")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("oracle.url", "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd")
	v.SetDefault("oracle.cooldown", "30s")

	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("app.auto_resubscribe", true)
	v.SetDefault("app.detailed_logging", false)
	v.SetDefault("app.prune_threshold_minutes", 0)

	v.SetDefault("logging.level", "info")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.Feed.Endpoint == "" {
		return fmt.Errorf("feed.endpoint is required")
	}
	if c.Feed.ReconnectBase < 100*time.Millisecond {
		return fmt.Errorf("feed.reconnect_base must be at least 100ms")
	}
	if c.Feed.MaxReconnectAttempts < 1 {
		return fmt.Errorf("feed.max_reconnect_attempts must be at least 1")
	}

	if c.Subscriptions.DrainInterval < 100*time.Millisecond {
		return fmt.Errorf("subscriptions.drain_interval must be at least 100ms")
	}
	if c.Trigger.TickInterval < 10*time.Millisecond {
		return fmt.Errorf("trigger.tick_interval must be at least 10ms")
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: memory, postgres")
	}

	if c.Oracle.URL == "" {
		return fmt.Errorf("oracle.url is required")
	}
	if c.Oracle.Cooldown < time.Second {
		return fmt.Errorf("oracle.cooldown must be at least 1s")
	}

	if c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required")
	}
	if c.App.PruneThresholdMinutes < 0 {
		return fmt.Errorf("app.prune_threshold_minutes must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
