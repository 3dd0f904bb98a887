// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Auth    AuthConfig    `yaml:"auth"`
	Payment PaymentConfig `yaml:"payment"`
	Cart    CartConfig    `yaml:"cart"`
	Webhook WebhookConfig `yaml:"webhook"`
	Player  PlayerConfig  `yaml:"player"`
	Suggest SuggestConfig `yaml:"suggest"`
}

// BackendConfig represents the catalog/data backend configuration.
type BackendConfig struct {
	BaseURL      string  `yaml:"base_url" validate:"required,url"`
	APIKey       string  `yaml:"api_key" validate:"required"`
	TimeoutSec   int     `yaml:"timeout_sec" default:"10" validate:"gt=0,lte=120"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" default:"5"`
	RateBurst    int     `yaml:"rate_burst" default:"10"`
}

// AuthConfig represents the auth collaborator configuration.
type AuthConfig struct {
	BaseURL    string `yaml:"base_url" validate:"required,url"`
	APIKey     string `yaml:"api_key" validate:"required"`
	TimeoutSec int    `yaml:"timeout_sec" default:"10" validate:"gt=0,lte=120"`
}

// PaymentConfig represents the merchant-of-record configuration.
// Settings are provider-specific and decoded with DecodeSettings.
type PaymentConfig struct {
	Provider string         `yaml:"provider" validate:"required"`
	BaseURL  string         `yaml:"base_url" validate:"required,url"`
	APIKey   string         `yaml:"api_key" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// DecodeSettings decodes the provider-specific settings map into out.
func (p *PaymentConfig) DecodeSettings(out any) error {
	if err := mapstructure.Decode(p.Settings, out); err != nil {
		return errors.Wrap(err, "failed to decode payment settings")
	}
	return nil
}

// CartConfig represents durable cart storage configuration.
type CartConfig struct {
	DBPath string `yaml:"db_path" default:"cart.db"`
}

// WebhookConfig represents the checkout-completion listener configuration.
type WebhookConfig struct {
	Addr  string `yaml:"addr" default:":8787"`
	Token string `yaml:"token" validate:"required"`
}

// PlayerConfig represents playback engine configuration.
type PlayerConfig struct {
	InitialVolume float64 `yaml:"initial_volume" default:"0.8" validate:"gte=0,lte=1"`
}

// SuggestConfig represents search suggestion configuration.
type SuggestConfig struct {
	DebounceMs int `yaml:"debounce_ms" default:"300" validate:"gte=0,lte=5000"`
	MaxResults int `yaml:"max_results" default:"8" validate:"gt=0,lte=50"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("BACKEND_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("AUTH_API_KEY"); v != "" {
		c.Auth.APIKey = v
	}
	if v := os.Getenv("PAYMENT_API_KEY"); v != "" {
		c.Payment.APIKey = v
	}
	if v := os.Getenv("WEBHOOK_TOKEN"); v != "" {
		c.Webhook.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
