package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Anonymizer AnonymizerConfig `yaml:"anonymizer" mapstructure:"anonymizer"`
	MT         MTConfig         `yaml:"mt" mapstructure:"mt"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// QueueConfig selects and sizes the job queue.
type QueueConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"`
	Workers          int    `yaml:"workers" mapstructure:"workers"`
	Buffer           int    `yaml:"buffer" mapstructure:"buffer"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// TemporalConfig holds Temporal connection and retry settings.
type TemporalConfig struct {
	HostPort            string `yaml:"host_port" mapstructure:"host_port"`
	Namespace           string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue           string `yaml:"task_queue" mapstructure:"task_queue"`
	ActivityTimeoutSecs int    `yaml:"activity_timeout_secs" mapstructure:"activity_timeout_secs"`
	MaxAttempts         int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// AnonymizerConfig holds the anonymization service settings.
type AnonymizerConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	URL         string `yaml:"url" mapstructure:"url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailClosed  bool   `yaml:"fail_closed" mapstructure:"fail_closed"`
}

// MTConfig selects and tunes the machine translation provider.
type MTConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	URL         string  `yaml:"url" mapstructure:"url"`
	Key         string  `yaml:"key" mapstructure:"key"`
	BatchSize   int     `yaml:"batch_size" mapstructure:"batch_size"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings for the LLM translator.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ResilienceConfig tunes the circuit breakers and retries around outbound calls.
type ResilienceConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// MonitoringConfig configures the task health monitor.
type MonitoringConfig struct {
	IntervalSecs   int    `yaml:"interval_secs" mapstructure:"interval_secs"`
	ErrorThreshold int    `yaml:"error_threshold" mapstructure:"error_threshold"`
	StuckAfterMins int    `yaml:"stuck_after_mins" mapstructure:"stuck_after_mins"`
	WebhookURL     string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ShutdownTimeout returns the graceful shutdown window.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

// ActivityTimeout returns the start-to-close timeout of one job activity.
func (c TemporalConfig) ActivityTimeout() time.Duration {
	return time.Duration(c.ActivityTimeoutSecs) * time.Second
}

// Timeout returns the per-call timeout.
func (c AnonymizerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Timeout returns the per-call timeout.
func (c MTConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ResetTimeout returns how long an open breaker waits before probing.
func (c ResilienceConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutSecs) * time.Second
}

// Interval returns the time between monitor checks.
func (c MonitoringConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// StuckAfter returns how long a task may sit in a queued stage before it is
// reported as stuck.
func (c MonitoringConfig) StuckAfter() time.Duration {
	return time.Duration(c.StuckAfterMins) * time.Minute
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOCTRANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "doctrans.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("queue.backend", "local")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.buffer", 1024)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.initial_backoff_ms", 500)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "doctrans")
	v.SetDefault("temporal.activity_timeout_secs", 600)
	v.SetDefault("temporal.max_attempts", 5)
	v.SetDefault("anonymizer.enabled", true)
	v.SetDefault("anonymizer.url", "http://localhost:8090")
	v.SetDefault("anonymizer.timeout_secs", 120)
	v.SetDefault("mt.provider", "http")
	v.SetDefault("mt.url", "http://localhost:8091")
	v.SetDefault("mt.batch_size", 50)
	v.SetDefault("mt.rate_per_sec", 2.0)
	v.SetDefault("mt.timeout_secs", 120)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("monitoring.interval_secs", 60)
	v.SetDefault("monitoring.error_threshold", 10)
	v.SetDefault("monitoring.stuck_after_mins", 30)

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

// Validate checks the settings a command needs. Mode is one of "serve",
// "worker", "migrate", "monitor" or "cli".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "worker":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateQueue()...)
		errs = append(errs, c.validateProviders()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "worker" && c.Queue.Backend != "temporal" {
			errs = append(errs, "worker requires queue.backend temporal")
		}
	case "migrate", "cli":
		errs = append(errs, c.validateStore()...)
	case "monitor":
		errs = append(errs, c.validateStore()...)
		if c.Monitoring.IntervalSecs <= 0 {
			errs = append(errs, "monitoring.interval_secs must be > 0")
		}
		if c.Monitoring.ErrorThreshold < 0 {
			errs = append(errs, "monitoring.error_threshold must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for sqlite"}
		}
	default:
		return []string{fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)}
	}
	return nil
}

func (c *Config) validateQueue() []string {
	var errs []string
	switch c.Queue.Backend {
	case "local":
		if c.Queue.Workers < 1 || c.Queue.Workers > 64 {
			errs = append(errs, "queue.workers must be between 1 and 64")
		}
	case "temporal":
		if c.Temporal.HostPort == "" {
			errs = append(errs, "temporal.host_port is required")
		}
		if c.Temporal.TaskQueue == "" {
			errs = append(errs, "temporal.task_queue is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("queue.backend must be local or temporal, got %q", c.Queue.Backend))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, "queue.max_attempts must be >= 1")
	}
	return errs
}

func (c *Config) validateProviders() []string {
	var errs []string
	if c.Anonymizer.Enabled && c.Anonymizer.URL == "" {
		errs = append(errs, "anonymizer.url is required when anonymizer is enabled")
	}
	switch c.MT.Provider {
	case "http":
		if c.MT.URL == "" {
			errs = append(errs, "mt.url is required")
		}
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("mt.provider must be http or anthropic, got %q", c.MT.Provider))
	}
	if c.MT.BatchSize < 1 || c.MT.BatchSize > 500 {
		errs = append(errs, "mt.batch_size must be between 1 and 500")
	}
	if c.MT.RatePerSec < 0 {
		errs = append(errs, "mt.rate_per_sec must be >= 0")
	}
	return errs
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
