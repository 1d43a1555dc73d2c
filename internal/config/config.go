// Package config loads and persists bgmute settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

const (
	defaultPollIntervalMS    = 300
	defaultRefreshIntervalMS = 2000
	defaultLogLevel          = "info"
)

// Muting contains the settings the engine reads on every pass.
type Muting struct {
	Enabled  bool     `toml:"enabled"`
	Excluded []string `toml:"excluded"`
}

// Engine contains scheduler timing.
type Engine struct {
	PollIntervalMS    int `toml:"poll_interval_ms"`
	RefreshIntervalMS int `toml:"refresh_interval_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Metrics contains the Prometheus exporter settings.
type Metrics struct {
	Listen string `toml:"listen"` // empty disables the exporter
}

// Config encapsulates all configuration values for bgmute.
type Config struct {
	Muting  Muting  `toml:"muting"`
	Engine  Engine  `toml:"engine"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Muting: Muting{
			Enabled:  true,
			Excluded: []string{},
		},
		Engine: Engine{
			PollIntervalMS:    defaultPollIntervalMS,
			RefreshIntervalMS: defaultRefreshIntervalMS,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}

// Load parses, normalizes, and validates the configuration file at path.
// A missing file yields the defaults; exists reports whether it was found.
func Load(path string) (cfg *Config, exists bool, err error) {
	c := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&c); err != nil {
			return nil, false, fmt.Errorf("parse config: %w", err)
		}
		exists = true
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, false, fmt.Errorf("open config: %w", err)
	}

	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, exists, err
	}
	return &c, exists, nil
}

// Save writes the configuration atomically (temp file + rename).
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Settings projects the muting section for the engine.
func (c *Config) Settings() domain.Settings {
	return domain.Settings{
		MutingEnabled: c.Muting.Enabled,
		Excluded:      append([]string(nil), c.Muting.Excluded...),
	}
}

// PollInterval returns the fast tick period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMS) * time.Millisecond
}

// RefreshInterval returns the session re-enumeration period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Engine.RefreshIntervalMS) * time.Millisecond
}
