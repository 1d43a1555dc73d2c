package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := Default()
	return NewStore(&cfg, zap.NewNop())
}

func TestStore_Settings(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetExcluded([]string{"Spotify.exe", "spotify.exe"}))
	require.NoError(t, s.SetMutingEnabled(false))

	got := s.Settings()
	assert.False(t, got.MutingEnabled)
	assert.Equal(t, []string{"spotify.exe"}, got.Excluded)
}

func TestStore_Toggle(t *testing.T) {
	s := newTestStore(t)

	enabled, err := s.Toggle()
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = s.Toggle()
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestStore_ReplaceRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	bad := Default()
	bad.Engine.PollIntervalMS = 10000

	assert.Error(t, s.Replace(&bad))
	assert.Equal(t, 300, s.Config().Engine.PollIntervalMS)
}

func TestStore_OnChange(t *testing.T) {
	s := newTestStore(t)
	var calls atomic.Int32
	s.OnChange(func() { calls.Add(1) })

	require.NoError(t, s.SetMutingEnabled(false))
	require.NoError(t, s.SetExcluded([]string{"a.exe"}))

	assert.Equal(t, int32(2), calls.Load())
}

func TestStore_PersistTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	s := newTestStore(t).PersistTo(path)

	require.NoError(t, s.SetExcluded([]string{"discord.exe"}))

	loaded, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []string{"discord.exe"}, loaded.Muting.Excluded)
}

func TestStore_ConcurrentReadsDuringWrites(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.Settings()
			}
		}()
	}
	for j := 0; j < 50; j++ {
		_, err := s.Toggle()
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestStore_WatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	require.NoError(t, cfg.Save(path))

	s := NewStore(&cfg, zap.NewNop())
	changed := make(chan struct{}, 1)
	s.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx, path, 10*time.Millisecond)

	edited := Default()
	edited.Muting.Enabled = false
	edited.Muting.Excluded = []string{"game.exe"}
	require.NoError(t, edited.Save(path))

	// Keep bumping the mtime: coarse filesystem timestamps may hide the edit.
	stamp := time.Now()
	require.Eventually(t, func() bool {
		stamp = stamp.Add(time.Second)
		_ = os.Chtimes(path, stamp, stamp)
		select {
		case <-changed:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	got := s.Settings()
	assert.False(t, got.MutingEnabled)
	assert.Equal(t, []string{"game.exe"}, got.Excluded)
}

func TestStore_WatchIgnoresInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	require.NoError(t, cfg.Save(path))
	s := NewStore(&cfg, zap.NewNop())

	require.NoError(t, os.WriteFile(path, []byte("[engine]\npoll_interval_ms = 9000\n"), 0644))

	s.reload(path)

	assert.Equal(t, 300, s.Config().Engine.PollIntervalMS)
}

func TestStore_ReloadKeepsEnvOverrides(t *testing.T) {
	t.Setenv("BGMUTE_LOG_LEVEL", "debug")
	t.Setenv("BGMUTE_POLL_INTERVAL_MS", "150")

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	require.NoError(t, cfg.Save(path))
	require.NoError(t, cfg.ApplyEnv())
	s := NewStore(&cfg, zap.NewNop())

	edited := Default()
	edited.Muting.Excluded = []string{"game.exe"}
	require.NoError(t, edited.Save(path))

	s.reload(path)

	got := s.Config()
	assert.Equal(t, []string{"game.exe"}, got.Muting.Excluded)
	assert.Equal(t, "debug", got.Logging.Level)
	assert.Equal(t, 150, got.Engine.PollIntervalMS)
}

func TestStore_ReloadRejectsInvalidEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	require.NoError(t, cfg.Save(path))
	s := NewStore(&cfg, zap.NewNop())

	edited := Default()
	edited.Muting.Enabled = false
	require.NoError(t, edited.Save(path))
	t.Setenv("BGMUTE_POLL_INTERVAL_MS", "soon")

	s.reload(path)

	assert.True(t, s.Settings().MutingEnabled)
}
