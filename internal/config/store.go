package config

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// Store holds the live configuration. Reads never block writers: every
// update swaps in a new immutable *Config.
type Store struct {
	current atomic.Pointer[Config]
	logger  *zap.Logger

	mu       sync.Mutex // serializes writers
	path     string     // when set, updates are saved here
	onChange func()
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg *Config, logger *zap.Logger) *Store {
	s := &Store{logger: logger}
	c := *cfg
	c.Muting.Excluded = append([]string(nil), cfg.Muting.Excluded...)
	s.current.Store(&c)
	return s
}

// PersistTo makes every update also write the file at path.
func (s *Store) PersistTo(path string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	return s
}

// OnChange registers fn to run after every successful update or reload.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Config returns the current configuration. Callers must not modify it.
func (s *Store) Config() *Config {
	return s.current.Load()
}

// Settings implements domain.SettingsSource.
func (s *Store) Settings() domain.Settings {
	return s.current.Load().Settings()
}

// SetMutingEnabled flips the global muting flag.
func (s *Store) SetMutingEnabled(enabled bool) error {
	return s.update(func(c *Config) {
		c.Muting.Enabled = enabled
	})
}

// Toggle inverts the global muting flag and returns the new value.
func (s *Store) Toggle() (bool, error) {
	var enabled bool
	err := s.update(func(c *Config) {
		c.Muting.Enabled = !c.Muting.Enabled
		enabled = c.Muting.Enabled
	})
	return enabled, err
}

// SetExcluded replaces the exclusion list.
func (s *Store) SetExcluded(names []string) error {
	return s.update(func(c *Config) {
		c.Muting.Excluded = append([]string(nil), names...)
	})
}

// Replace swaps in cfg after validating it.
func (s *Store) Replace(cfg *Config) error {
	return s.update(func(c *Config) {
		*c = *cfg
		c.Muting.Excluded = append([]string(nil), cfg.Muting.Excluded...)
	})
}

func (s *Store) update(mutate func(c *Config)) error {
	s.mu.Lock()

	next := *s.current.Load()
	next.Muting.Excluded = append([]string(nil), next.Muting.Excluded...)
	mutate(&next)
	next.normalize()
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}

	if s.path != "" {
		if err := next.Save(s.path); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	s.current.Store(&next)
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// Watch reloads the file at path whenever its modification time changes,
// checking every interval until ctx is cancelled. BGMUTE_* overrides are
// applied on top of every reload. Invalid files are logged and ignored; the
// previous configuration stays active.
func (s *Store) Watch(ctx context.Context, path string, every time.Duration) {
	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil || info.ModTime().Equal(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			s.reload(path)
		}
	}
}

func (s *Store) reload(path string) {
	cfg, _, err := Load(path)
	if err == nil {
		err = cfg.ApplyEnv()
	}
	if err != nil {
		s.logger.Warn("ignoring invalid config file",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	if cur := s.current.Load(); sameSettings(cur, cfg) {
		s.mu.Unlock()
		return
	}
	s.current.Store(cfg)
	onChange := s.onChange
	s.mu.Unlock()

	s.logger.Info("config reloaded",
		zap.String("path", path),
		zap.Bool("muting_enabled", cfg.Muting.Enabled),
		zap.Strings("excluded", cfg.Muting.Excluded))

	if onChange != nil {
		onChange()
	}
}

func sameSettings(a, b *Config) bool {
	if a.Muting.Enabled != b.Muting.Enabled || len(a.Muting.Excluded) != len(b.Muting.Excluded) {
		return false
	}
	for i := range a.Muting.Excluded {
		if a.Muting.Excluded[i] != b.Muting.Excluded[i] {
			return false
		}
	}
	return a.Engine == b.Engine && a.Logging == b.Logging && a.Metrics == b.Metrics
}

// Ensure Store implements domain.SettingsSource.
var _ domain.SettingsSource = (*Store)(nil)
