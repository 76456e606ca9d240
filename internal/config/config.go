package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deeplydigital/pole-burndown/internal/burndown"
	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Katapult KatapultConfig `yaml:"katapult" mapstructure:"katapult"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Breaker  BreakerConfig  `yaml:"breaker" mapstructure:"breaker"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Rates    burndown.Rates `yaml:"rates" mapstructure:"rates"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	GIS      GISConfig      `yaml:"gis" mapstructure:"gis"`
	Email    EmailConfig    `yaml:"email" mapstructure:"email"`
	Notion   NotionConfig   `yaml:"notion" mapstructure:"notion"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Monitor  MonitorConfig  `yaml:"monitor" mapstructure:"monitor"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// KatapultConfig holds job provider settings.
type KatapultConfig struct {
	APIKey        string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	MinIntervalMs int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	// LookbackHours selects jobs updated this recently; zero fetches every job.
	LookbackHours int `yaml:"lookback_hours" mapstructure:"lookback_hours"`
}

// MinInterval returns the enforced gap between provider calls.
func (c KatapultConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMs) * time.Millisecond
}

// RetryConfig holds retry settings for provider and sink calls.
type RetryConfig struct {
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs   int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs       int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	AttemptTimeoutSecs int     `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
	Multiplier         float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction     float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Policy converts the settings to a resilience.RetryConfig.
func (c RetryConfig) Policy() resilience.RetryConfig {
	return resilience.FromRetryConfig(c.MaxAttempts, c.InitialBackoffMs, c.MaxBackoffMs,
		c.AttemptTimeoutSecs, c.Multiplier, c.JitterFraction)
}

// BreakerConfig holds circuit breaker settings for publishing sinks.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Policy converts the settings to a resilience.BreakerConfig.
func (c BreakerConfig) Policy() resilience.BreakerConfig {
	return resilience.FromBreakerConfig(c.FailureThreshold, c.ResetTimeoutSecs)
}

// ResolverConfig configures attribute resolution.
type ResolverConfig struct {
	PrioritiesFile    string `yaml:"priorities_file" mapstructure:"priorities_file"`
	AttachmentCompany string `yaml:"attachment_company" mapstructure:"attachment_company"`
}

// PipelineConfig configures the daily run.
type PipelineConfig struct {
	Concurrency   int  `yaml:"concurrency" mapstructure:"concurrency"`
	RetryFailed   bool `yaml:"retry_failed" mapstructure:"retry_failed"`
	DLQBatchLimit int  `yaml:"dlq_batch_limit" mapstructure:"dlq_batch_limit"`
}

// ReportConfig configures workbook output.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	Locale    string `yaml:"locale" mapstructure:"locale"`
}

// GISConfig configures the feature service sink.
type GISConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Token           string `yaml:"token" mapstructure:"token"`
	PoleLayer       int    `yaml:"pole_layer" mapstructure:"pole_layer"`
	ConnectionLayer int    `yaml:"connection_layer" mapstructure:"connection_layer"`
	AnchorLayer     int    `yaml:"anchor_layer" mapstructure:"anchor_layer"`
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// EmailConfig configures report delivery over SMTP.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled" mapstructure:"enabled"`
	Host     string   `yaml:"host" mapstructure:"host"`
	Port     int      `yaml:"port" mapstructure:"port"`
	Username string   `yaml:"username" mapstructure:"username"`
	Password string   `yaml:"password" mapstructure:"password"`
	From     string   `yaml:"from" mapstructure:"from"`
	To       []string `yaml:"to" mapstructure:"to"`
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	BurndownDB string `yaml:"burndown_db" mapstructure:"burndown_db"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitorConfig configures run health alerts raised by the serve command.
type MonitorConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DLQDepthThreshold    int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	// StaleAfterHours raises an alert when no daily run finished this recently.
	StaleAfterHours int `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
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
	v.SetEnvPrefix("BURNDOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets and endpoints have empty defaults so env vars bind.
	for _, key := range []string{
		"store.database_url", "resolver.priorities_file", "gis.base_url", "gis.token",
		"email.host", "email.username", "email.password", "email.from",
		"notion.token", "notion.burndown_db", "monitor.webhook_url",
	} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("katapult.api_key", "")
	v.SetDefault("katapult.base_url", "https://katapultpro.com/api/v2")
	v.SetDefault("katapult.min_interval_ms", 2000)
	v.SetDefault("katapult.lookback_hours", 0)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.attempt_timeout_secs", 30)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 60)
	v.SetDefault("resolver.attachment_company", "Clearnetworx")
	v.SetDefault("rates.back_office_per_week", 100.0)
	v.SetDefault("rates.field_per_week", 80.0)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.retry_failed", true)
	v.SetDefault("pipeline.dlq_batch_limit", 100)
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.locale", "en-US")
	v.SetDefault("gis.enabled", false)
	v.SetDefault("gis.pole_layer", 0)
	v.SetDefault("gis.connection_layer", 1)
	v.SetDefault("gis.anchor_layer", 2)
	v.SetDefault("gis.batch_size", 250)
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.port", 587)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.check_interval_secs", 300)
	v.SetDefault("monitor.lookback_window_hours", 24)
	v.SetDefault("monitor.failure_rate_threshold", 0.10)
	v.SetDefault("monitor.dlq_depth_threshold", 50)
	v.SetDefault("monitor.stale_after_hours", 26)
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

// Validate checks the settings a command mode needs. Modes: daily, backfill,
// weekly, serve, store, export.
func (c *Config) Validate(mode string) error {
	var errs []string
	needStore := func() {
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			errs = append(errs, "store.driver must be postgres or sqlite")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "daily":
		needStore()
		if c.Katapult.APIKey == "" {
			errs = append(errs, "katapult.api_key is required")
		}
		if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 16 {
			errs = append(errs, "pipeline.concurrency must be between 1 and 16")
		}
		if c.GIS.Enabled && c.GIS.BaseURL == "" {
			errs = append(errs, "gis.base_url is required when gis.enabled")
		}
		if c.Email.Enabled && (c.Email.Host == "" || len(c.Email.To) == 0) {
			errs = append(errs, "email.host and email.to are required when email.enabled")
		}
	case "backfill", "weekly", "store":
		needStore()
	case "export":
		if c.Katapult.APIKey == "" {
			errs = append(errs, "katapult.api_key is required")
		}
	case "serve":
		needStore()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitor.Enabled && c.Monitor.WebhookURL == "" {
			errs = append(errs, "monitor.webhook_url is required when monitor.enabled")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Rates.BackOfficePerWeek < 0 || c.Rates.FieldPerWeek < 0 {
		errs = append(errs, "rates must be >= 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
