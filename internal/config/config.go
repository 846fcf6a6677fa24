package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	customvalidator "github.com/spounge-ai/polypay/pkg/validator"
)

const envPrefix = "POLYPAY"

type Config struct {
	API            APIConfig            `mapstructure:"api"`
	Callbacks      CallbacksConfig      `mapstructure:"callbacks"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	EphemeralKeys  EphemeralKeysConfig  `mapstructure:"ephemeral_keys"`
	AWS            AWSConfig            `mapstructure:"aws"`
	Log            LogConfig            `mapstructure:"log"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Mock           MockConfig           `mapstructure:"mock"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type MetricsConfig struct {
	// Addr serves /metrics when non-empty.
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

var defaults = map[string]any{
	"api.base_url":                  "https://api.stripe.com/v1",
	"api.publishable_key":           "",
	"api.publishable_key_parameter": "",
	"api.timeout":                   30 * time.Second,
	"api.version":                   "",
	"callbacks.executor":            "inline",
	"callbacks.queue_size":          64,
	"circuit_breaker.enabled":       false,
	"circuit_breaker.max_failures":  5,
	"circuit_breaker.reset_timeout": 30 * time.Second,
	"ephemeral_keys.endpoint":       "",
	"ephemeral_keys.customer_id":    "",
	"ephemeral_keys.auth_token":     "",
	"ephemeral_keys.refresh_margin": time.Minute,
	"aws.region":                    "",
	"log.level":                     "info",
	"log.format":                    "text",
	"metrics.addr":                  "",
	"mock.addr":                     "127.0.0.1:12111",
	"mock.seed_file":                "",
	"mock.rate_limit":               0.0,
	"mock.burst":                    20,
	"mock.ephemeral_key_ttl":        time.Hour,
}

// Load reads path (or ./polypay.yaml, ./configs/polypay.yaml when path is
// empty), applies POLYPAY_* environment overrides and validates the result.
// A missing default file is not an error.
func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("polypay")
		vip.AddConfigPath("./configs")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix(envPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()

	for key, value := range defaults {
		vip.SetDefault(key, value)
	}

	if err := vip.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := customvalidator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// NewLogger builds the process logger described by the log section.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c LogConfig) level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
