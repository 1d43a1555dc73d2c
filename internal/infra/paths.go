package infra

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDirName = "bgmute"

// Paths holds the per-user locations bgmute reads and writes.
type Paths struct {
	ConfigDir  string
	ConfigFile string
	DataDir    string // ledger, key, log, and lock live here
	LogFile    string
	LedgerFile string
	LockFile   string
}

// DetectPaths resolves the paths for the current user.
// Windows: %APPDATA%\bgmute for config, %LOCALAPPDATA%\bgmute for data.
// Elsewhere: XDG config and data directories.
func DetectPaths() *Paths {
	home, _ := os.UserHomeDir()

	configRoot, err := os.UserConfigDir()
	if err != nil {
		configRoot = filepath.Join(home, ".config")
	}

	return NewPaths(filepath.Join(configRoot, appDirName), filepath.Join(dataRoot(home), appDirName))
}

// NewPaths lays out the files under the given directories.
func NewPaths(configDir, dataDir string) *Paths {
	return &Paths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, "config.toml"),
		DataDir:    dataDir,
		LogFile:    filepath.Join(dataDir, "bgmute.log"),
		LedgerFile: filepath.Join(dataDir, ledgerDBName),
		LockFile:   filepath.Join(dataDir, "bgmute.lock"),
	}
}

// EnsureDataDir creates the data directory.
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir, 0700)
}

func dataRoot(home string) string {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir
		}
		return filepath.Join(home, "AppData", "Local")
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(home, ".local", "share")
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		return home
	}
	return path
}
