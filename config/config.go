// Package config loads application configuration from a YAML or JSON file
// with environment overrides layered on top. Defaults are chosen so a bare
// `flowengine` against a local NATS server comes up without a config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/delivery"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/gateway"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/recipe"
)

// envPrefix namespaces all environment overrides
const envPrefix = "FRESHSAVER"

// Duration accepts "5m"-style strings in YAML and JSON config files
type Duration time.Duration

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	URL           string   `json:"url" yaml:"url"`
	Name          string   `json:"name" yaml:"name"`
	MaxReconnects int      `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
}

// SchedulerConfig configures the periodic batch runner
type SchedulerConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Interval Duration `json:"interval" yaml:"interval"`
}

// EngineConfig configures execution limits
type EngineConfig struct {
	StepBudget int `json:"step_budget" yaml:"step_budget"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// Config is the complete application configuration
type Config struct {
	NATS      NATSConfig               `json:"nats" yaml:"nats"`
	HTTP      gateway.Config           `json:"http" yaml:"http"`
	Delivery  delivery.MessengerConfig `json:"delivery" yaml:"delivery"`
	Webhook   delivery.WebhookConfig   `json:"webhook" yaml:"webhook"`
	Recipe    recipe.Config            `json:"recipe" yaml:"recipe"`
	Scheduler SchedulerConfig          `json:"scheduler" yaml:"scheduler"`
	Engine    EngineConfig             `json:"engine" yaml:"engine"`
	Log       LogConfig                `json:"log" yaml:"log"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "freshsaver-flowengine",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		HTTP: gateway.Config{
			Addr: ":8080",
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: Duration(15 * time.Minute),
		},
		Engine: EngineConfig{
			StepBudget: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path (YAML or JSON; JSON is a YAML subset),
// applies environment overrides, and validates. An empty path loads defaults
// plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load",
				fmt.Sprintf("read config file %s", path))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load",
				fmt.Sprintf("parse config file %s", path))
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", "nats.url is required")
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if c.Delivery.BaseURL != "" {
		if err := c.Delivery.Validate(); err != nil {
			return err
		}
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"scheduler.interval must be positive")
	}
	if c.Engine.StepBudget < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"engine.step_budget cannot be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("log.format %q is not one of json, text", c.Log.Format))
	}

	return nil
}

// applyEnvOverrides layers FRESHSAVER_* environment variables over the
// file-provided values
func applyEnvOverrides(cfg *Config) {
	if val := envVal("NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := envVal("NATS_NAME"); val != "" {
		cfg.NATS.Name = val
	}
	if val := envVal("HTTP_ADDR"); val != "" {
		cfg.HTTP.Addr = val
	}
	if val := envVal("DELIVERY_BASE_URL"); val != "" {
		cfg.Delivery.BaseURL = val
	}
	if val := envVal("DELIVERY_API_KEY"); val != "" {
		cfg.Delivery.APIKey = val
	}
	if val := envVal("RECIPE_BASE_URL"); val != "" {
		cfg.Recipe.BaseURL = val
	}
	if val := envVal("RECIPE_MODEL"); val != "" {
		cfg.Recipe.Model = val
	}
	if val := envVal("SCHEDULER_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			cfg.Scheduler.Enabled = enabled
		}
	}
	if val := envVal("SCHEDULER_INTERVAL"); val != "" {
		if interval, err := time.ParseDuration(val); err == nil {
			cfg.Scheduler.Interval = Duration(interval)
		}
	}
	if val := envVal("LOG_LEVEL"); val != "" {
		cfg.Log.Level = strings.ToLower(val)
	}
	if val := envVal("LOG_FORMAT"); val != "" {
		cfg.Log.Format = strings.ToLower(val)
	}
}

func envVal(suffix string) string {
	return os.Getenv(envPrefix + "_" + suffix)
}
