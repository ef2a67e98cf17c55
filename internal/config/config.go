package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the gateway, consumer and CLI.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Geo        GeoConfig        `mapstructure:"geo"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type StreamConfig struct {
	Name   string `mapstructure:"name"`
	Group  string `mapstructure:"group"`
	MaxLen int64  `mapstructure:"max_len"`
}

// IngestConfig sizes the background pool that persists and publishes
// accepted webhooks.
type IngestConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type DispatcherConfig struct {
	ConsumerName  string        `mapstructure:"consumer_name"`
	BatchSize     int64         `mapstructure:"batch_size"`
	BlockTimeout  time.Duration `mapstructure:"block_timeout"`
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	ErrorBackoff  time.Duration `mapstructure:"error_backoff"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
	HandleTimeout time.Duration `mapstructure:"handle_timeout"`
	PruneIdle     time.Duration `mapstructure:"prune_idle"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type GeoConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	BaseURL            string        `mapstructure:"base_url"`
	Token              string        `mapstructure:"token"`
	Timeout            time.Duration `mapstructure:"timeout"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	RateLimitPerSecond int           `mapstructure:"rate_limit_per_second"`
}

type ReconcilerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	MinAge    time.Duration `mapstructure:"min_age"`
	ClaimTTL  time.Duration `mapstructure:"claim_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from defaults, an optional YAML file and
// PIPELINE_* environment variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.url", "")
	v.SetDefault("stream.name", "webhooks")
	v.SetDefault("stream.group", "webhook_processors")
	v.SetDefault("stream.max_len", 10000)
	v.SetDefault("ingest.workers", 16)
	v.SetDefault("ingest.queue_size", 1024)
	v.SetDefault("ingest.timeout", "10s")
	v.SetDefault("dispatcher.consumer_name", "")
	v.SetDefault("dispatcher.batch_size", 10)
	v.SetDefault("dispatcher.block_timeout", "1s")
	v.SetDefault("dispatcher.claim_min_idle", "30s")
	v.SetDefault("dispatcher.max_attempts", 5)
	v.SetDefault("dispatcher.error_backoff", "1s")
	v.SetDefault("dispatcher.drain_timeout", "30s")
	v.SetDefault("dispatcher.handle_timeout", "30s")
	v.SetDefault("dispatcher.prune_idle", "1h")
	v.SetDefault("dispatcher.prune_interval", "10m")
	v.SetDefault("geo.enabled", true)
	v.SetDefault("geo.base_url", "https://ipinfo.io")
	v.SetDefault("geo.token", "")
	v.SetDefault("geo.timeout", "3s")
	v.SetDefault("geo.cache_ttl", "24h")
	v.SetDefault("geo.rate_limit_per_second", 20)
	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.interval", "1m")
	v.SetDefault("reconciler.batch_size", 100)
	v.SetDefault("reconciler.min_age", "30s")
	v.SetDefault("reconciler.claim_ttl", "5m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/commerce-webhook-pipeline")
	}

	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings every long-running process needs.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if c.Stream.Name == "" || c.Stream.Group == "" {
		return fmt.Errorf("stream.name and stream.group are required")
	}
	if c.Dispatcher.BatchSize <= 0 {
		return fmt.Errorf("dispatcher.batch_size must be positive")
	}
	if c.Dispatcher.MaxAttempts <= 0 {
		return fmt.Errorf("dispatcher.max_attempts must be positive")
	}
	if d := c.Dispatcher; d.PruneIdle > 0 && (d.PruneIdle <= d.BlockTimeout || d.PruneIdle <= d.ClaimMinIdle) {
		return fmt.Errorf("dispatcher.prune_idle must exceed block_timeout and claim_min_idle")
	}
	return nil
}
