package config

import "time"

// APIConfig points the client at the platform. The publishable key may be
// given inline or as the name of an SSM parameter holding it.
type APIConfig struct {
	BaseURL                 string        `mapstructure:"base_url"                  validate:"required,url"`
	PublishableKey          string        `mapstructure:"publishable_key"           validate:"omitempty,publishable_key"`
	PublishableKeyParameter string        `mapstructure:"publishable_key_parameter" validate:"omitempty,ssm_parameter"`
	Timeout                 time.Duration `mapstructure:"timeout"                   validate:"gte=0"`
	// Version overrides the API version header; empty uses the built-in one.
	Version                 string        `mapstructure:"version"`
}

type CallbacksConfig struct {
	Executor  string `mapstructure:"executor"   validate:"oneof=inline spawn serial"`
	QueueSize int    `mapstructure:"queue_size" validate:"gte=0"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"  validate:"required_if=Enabled true,omitempty,gte=1"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout" validate:"gte=0"`
}

// EphemeralKeysConfig describes the integration backend that mints
// customer keys.
type EphemeralKeysConfig struct {
	Endpoint      string        `mapstructure:"endpoint"       validate:"omitempty,url"`
	CustomerID    string        `mapstructure:"customer_id"    validate:"omitempty,object_id"`
	AuthToken     string        `mapstructure:"auth_token"`
	RefreshMargin time.Duration `mapstructure:"refresh_margin" validate:"gte=0"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

// MockConfig configures the fake platform server.
type MockConfig struct {
	Addr            string        `mapstructure:"addr"              validate:"required,hostname_port"`
	SeedFile        string        `mapstructure:"seed_file"`
	RateLimit       float64       `mapstructure:"rate_limit"        validate:"gte=0"`
	Burst           int           `mapstructure:"burst"             validate:"gte=0"`
	EphemeralKeyTTL time.Duration `mapstructure:"ephemeral_key_ttl" validate:"gte=0"`
}
