package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/resilient-orders/internal/backoff"
	"github.com/angeloszaimis/resilient-orders/internal/circuitbreaker"
	"github.com/angeloszaimis/resilient-orders/internal/httpserver"
	"github.com/angeloszaimis/resilient-orders/internal/refresher"
	"github.com/angeloszaimis/resilient-orders/internal/strategy"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	Environment     string        `mapstructure:"environment"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	AddSource  bool   `mapstructure:"add_source"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type UpstreamConfig struct {
	URL string `mapstructure:"url"`
	// RequestTimeout bounds a single HTTP attempt. Zero means no bound.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ResilienceConfig struct {
	Mode           string                `mapstructure:"mode"`
	MaxRetries     int                   `mapstructure:"max_retries"`
	Backoff        backoff.Config        `mapstructure:"backoff"`
	Timeout        time.Duration         `mapstructure:"timeout"`
	CircuitBreaker circuitbreaker.Config `mapstructure:"circuit_breaker"`
}

type RefreshConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Refresh    RefreshConfig    `mapstructure:"refresh"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("upstream.url", "http://localhost:8081/orders")
	v.SetDefault("upstream.request_timeout", "0s")

	v.SetDefault("resilience.mode", strategy.Layered)
	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.backoff.initial_delay", "100ms")
	v.SetDefault("resilience.backoff.factor", 2.0)
	v.SetDefault("resilience.backoff.max_delay", "2s")
	v.SetDefault("resilience.timeout", "5s")
	v.SetDefault("resilience.circuit_breaker.failure_threshold", 5)
	v.SetDefault("resilience.circuit_breaker.open_timeout", "30s")

	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.schedule", "@every 30s")
	v.SetDefault("refresh.timeout", "10s")

	v.SetDefault("metrics.buffer_size", 1000)
}

// Load reads configuration from path, or from config.yaml in ./config or the
// working directory when path is empty. Environment variables override file
// values (server.address is SERVER_ADDRESS); a .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env file", slog.String("error", err.Error()))
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Debug("config file not found, using defaults and environment variables")
	} else {
		slog.Debug("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.Logging),
		validation.Field(&c.Upstream),
		validation.Field(&c.Resilience),
		validation.Field(&c.Refresh),
		validation.Field(&c.Metrics),
	)
}

func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Environment,
			validation.Required,
			validation.In(EnvDev, EnvStaging, EnvProd),
		),
		validation.Field(&c.Address,
			validation.Required,
			validation.By(httpserver.ValidateAddress),
		),
		validation.Field(&c.ReadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.WriteTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.IdleTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

func (c LoggingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

func (c UpstreamConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL,
			validation.Required,
			validation.By(validateUpstreamURL),
		),
		validation.Field(&c.RequestTimeout, validation.Min(time.Duration(0))),
	)
}

func (c ResilienceConfig) Validate() error {
	modes := make([]interface{}, 0, len(strategy.Names()))
	for _, name := range strategy.Names() {
		modes = append(modes, name)
	}

	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode,
			validation.Required,
			validation.In(modes...),
		),
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.Backoff),
		validation.Field(&c.Timeout,
			validation.Required,
			validation.Min(time.Millisecond),
		),
		validation.Field(&c.CircuitBreaker),
	)
}

func (c RefreshConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Schedule,
			validation.When(c.Enabled, validation.Required, validation.By(validateSchedule)),
		),
		validation.Field(&c.Timeout,
			validation.When(c.Enabled, validation.Required, validation.Min(time.Millisecond)),
		),
	)
}

func (c MetricsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BufferSize,
			validation.Required,
			validation.Min(1),
		),
	)
}

func validateSchedule(value interface{}) error {
	spec, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if err := refresher.ValidateSchedule(spec); err != nil {
		return validation.NewError("validation_invalid_schedule", "must be a cron expression or descriptor (e.g. @every 30s)")
	}

	return nil
}

func validateUpstreamURL(value interface{}) error {
	upstreamURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	parsedURL, err := url.Parse(upstreamURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
