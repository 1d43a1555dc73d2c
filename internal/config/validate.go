package config

import (
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.PollIntervalMS <= 0 {
		return errors.New("engine.poll_interval_ms must be positive")
	}
	if c.Engine.RefreshIntervalMS <= 0 {
		return errors.New("engine.refresh_interval_ms must be positive")
	}
	if c.Engine.PollIntervalMS >= c.Engine.RefreshIntervalMS {
		return fmt.Errorf("engine.poll_interval_ms (%d) must be below engine.refresh_interval_ms (%d)",
			c.Engine.PollIntervalMS, c.Engine.RefreshIntervalMS)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}
