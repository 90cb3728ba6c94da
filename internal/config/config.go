package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/longbox-labs/entity-verify/internal/resilience"
	"github.com/longbox-labs/entity-verify/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Bulk      BulkConfig      `yaml:"bulk" mapstructure:"bulk"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// RedisConfig configures the Redis-backed job queue. When disabled the
// process falls back to the in-memory queue.
type RedisConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr           string `yaml:"addr" mapstructure:"addr"`
	Password       string `yaml:"password" mapstructure:"password"`
	DB             int    `yaml:"db" mapstructure:"db"`
	Namespace      string `yaml:"namespace" mapstructure:"namespace"`
	RetentionHours int    `yaml:"retention_hours" mapstructure:"retention_hours"`
}

// ProvidersConfig holds per-source API credentials.
type ProvidersConfig struct {
	ComicVine ComicVineConfig `yaml:"comicvine" mapstructure:"comicvine"`
	Marvel    MarvelConfig    `yaml:"marvel" mapstructure:"marvel"`
	Superhero SuperheroConfig `yaml:"superhero" mapstructure:"superhero"`
}

// ComicVineConfig holds Comic Vine API settings.
type ComicVineConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MarvelConfig holds Marvel API settings.
type MarvelConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	PublicKey  string `yaml:"public_key" mapstructure:"public_key"`
	PrivateKey string `yaml:"private_key" mapstructure:"private_key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
}

// SuperheroConfig holds Superhero API settings.
type SuperheroConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Token   string `yaml:"token" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BreakerConfig configures the per-source circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold" mapstructure:"success_threshold"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CircuitBreaker converts to the resilience package's config.
func (c BreakerConfig) CircuitBreaker() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		Timeout:          time.Duration(c.TimeoutSecs) * time.Second,
	}
}

// RetryConfig configures fetch retry backoff.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// Retry converts to the resilience package's config.
func (c RetryConfig) Retry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  c.MaxAttempts,
		InitialDelay: time.Duration(c.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(c.MaxBackoffMs) * time.Millisecond,
		Multiplier:   c.Multiplier,
	}
}

// VerifyConfig configures reconciliation behavior.
type VerifyConfig struct {
	FreshnessWindowHours int `yaml:"freshness_window_hours" mapstructure:"freshness_window_hours"`
}

// FreshnessWindow returns the configured window as a duration.
func (c VerifyConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowHours) * time.Hour
}

// WorkerConfig configures the job consumer.
type WorkerConfig struct {
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	PollIntervalMs int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
}

// BulkConfig configures bulk verification runs.
type BulkConfig struct {
	BatchSize             int     `yaml:"batch_size" mapstructure:"batch_size"`
	DelayBetweenBatchesMs int     `yaml:"delay_between_batches_ms" mapstructure:"delay_between_batches_ms"`
	EnqueuePerSecond      float64 `yaml:"enqueue_per_second" mapstructure:"enqueue_per_second"`
	StaggerMs             int     `yaml:"stagger_ms" mapstructure:"stagger_ms"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.namespace", "verify")
	v.SetDefault("redis.retention_hours", 24)
	v.SetDefault("providers.comicvine.enabled", true)
	v.SetDefault("providers.marvel.enabled", true)
	v.SetDefault("providers.superhero.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.timeout_secs", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("verify.freshness_window_hours", 168)
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.poll_interval_ms", 250)
	v.SetDefault("bulk.batch_size", 100)
	v.SetDefault("bulk.delay_between_batches_ms", 1000)
	v.SetDefault("bulk.enqueue_per_second", 100)
	v.SetDefault("bulk.stagger_ms", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a given command mode depends on, so a
// bad deployment fails at startup instead of at the first job.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch mode {
	case "migrate":
		// Store settings only.
	case "serve", "worker", "verify", "bulk":
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Worker.Concurrency < 1 || c.Worker.Concurrency > 50 {
			problems = append(problems, "worker.concurrency must be between 1 and 50")
		}
		if c.Redis.Enabled && c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required when redis is enabled")
		}
		if c.Providers.ComicVine.Enabled && c.Providers.ComicVine.APIKey == "" {
			problems = append(problems, "providers.comicvine.api_key is required")
		}
		if c.Providers.Marvel.Enabled && (c.Providers.Marvel.PublicKey == "" || c.Providers.Marvel.PrivateKey == "") {
			problems = append(problems, "providers.marvel.public_key and private_key are required")
		}
		if c.Providers.Superhero.Enabled && c.Providers.Superhero.Token == "" {
			problems = append(problems, "providers.superhero.token is required")
		}
		if !c.Providers.ComicVine.Enabled && !c.Providers.Marvel.Enabled && !c.Providers.Superhero.Enabled {
			problems = append(problems, "at least one provider must be enabled")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s mode: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// WriteExample writes a config.yaml populated with defaults, for
// bootstrapping a new deployment. Fails if the file already exists.
func WriteExample(path string) error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal example")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return eris.Wrap(err, "config: create example file")
	}
	defer f.Close()

	if _, err := f.Write(out); err != nil {
		return eris.Wrap(err, "config: write example file")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
