package infra

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaths_Layout(t *testing.T) {
	p := NewPaths("/cfg/bgmute", "/data/bgmute")

	assert.Equal(t, filepath.Join("/cfg/bgmute", "config.toml"), p.ConfigFile)
	assert.Equal(t, filepath.Join("/data/bgmute", "bgmute.log"), p.LogFile)
	assert.Equal(t, filepath.Join("/data/bgmute", ledgerDBName), p.LedgerFile)
	assert.Equal(t, filepath.Join("/data/bgmute", "bgmute.lock"), p.LockFile)
}

func TestDetectPaths_UsesXDGDataHome(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG_DATA_HOME is not used on windows")
	}
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	p := DetectPaths()

	assert.Equal(t, filepath.Join(dataHome, "bgmute"), p.DataDir)
	assert.Equal(t, "bgmute", filepath.Base(p.ConfigDir))
}

func TestPaths_EnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	p := NewPaths(t.TempDir(), dir)

	require.NoError(t, p.EnsureDataDir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tilde only", "~", home},
		{"tilde prefix", "~/bgmute/config.toml", filepath.Join(home, "bgmute", "config.toml")},
		{"absolute untouched", "/etc/bgmute.toml", "/etc/bgmute.toml"},
		{"relative untouched", "config.toml", "config.toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandHome(tt.in))
		})
	}
}
