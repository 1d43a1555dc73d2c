package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "BGMUTE"

// envOverrides lists the settings that may be overridden from the environment.
// Unset variables leave the file value untouched.
type envOverrides struct {
	LogLevel          string `envconfig:"LOG_LEVEL"`
	PollIntervalMS    int    `envconfig:"POLL_INTERVAL_MS"`
	RefreshIntervalMS int    `envconfig:"REFRESH_INTERVAL_MS"`
	MetricsListen     string `envconfig:"METRICS_LISTEN"`
}

// ApplyEnv applies BGMUTE_* overrides, then re-normalizes and validates.
func (c *Config) ApplyEnv() error {
	ov := envOverrides{
		LogLevel:          c.Logging.Level,
		PollIntervalMS:    c.Engine.PollIntervalMS,
		RefreshIntervalMS: c.Engine.RefreshIntervalMS,
		MetricsListen:     c.Metrics.Listen,
	}
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return fmt.Errorf("failed to load environment overrides: %w", err)
	}

	c.Logging.Level = ov.LogLevel
	c.Engine.PollIntervalMS = ov.PollIntervalMS
	c.Engine.RefreshIntervalMS = ov.RefreshIntervalMS
	c.Metrics.Listen = ov.MetricsListen

	c.normalize()
	return c.Validate()
}
