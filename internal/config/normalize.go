package config

import (
	"strings"

	"github.com/eliteGoblin/focusd/bgmute/internal/policy"
)

func (c *Config) normalize() {
	c.normalizeMuting()
	c.normalizeEngine()
	c.normalizeLogging()
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
}

// normalizeMuting lowercases and dedupes exclusions, keeping first-seen order.
func (c *Config) normalizeMuting() {
	c.Muting.Excluded = normalizeExcluded(c.Muting.Excluded)
}

func (c *Config) normalizeEngine() {
	if c.Engine.PollIntervalMS == 0 {
		c.Engine.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Engine.RefreshIntervalMS == 0 {
		c.Engine.RefreshIntervalMS = defaultRefreshIntervalMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeExcluded(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = policy.NormalizeExeName(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
