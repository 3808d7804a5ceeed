// Package paths resolves where hatchery keeps its files.
//
//   - Config: config.json with global settings
//   - Data: worktrees/ (default worktree base) and bin/ (generated executables)
//   - State: logs/
//
// A ~/.hatchery directory, when present, holds everything (flat layout). Otherwise
// the XDG base directories are used when any XDG variable is set, and a fresh
// install without XDG falls back to ~/.hatchery.
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

const appName = "hatchery"

type layout struct {
	config, data, state string
	flat                bool
}

var (
	mu     sync.Mutex
	cached *layout
)

func current() (*layout, error) {
	mu.Lock()
	defer mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	flatDir := filepath.Join(home, "."+appName)
	flat := &layout{config: flatDir, data: flatDir, state: flatDir, flat: true}

	if fi, err := os.Stat(flatDir); err == nil && fi.IsDir() {
		cached = flat
		return cached, nil
	}

	xdg := func(env string, def ...string) (string, bool) {
		if v := os.Getenv(env); v != "" {
			return filepath.Join(v, appName), true
		}
		return filepath.Join(append([]string{home}, append(def, appName)...)...), false
	}
	cfg, c := xdg("XDG_CONFIG_HOME", ".config")
	data, d := xdg("XDG_DATA_HOME", ".local", "share")
	state, s := xdg("XDG_STATE_HOME", ".local", "state")
	if !c && !d && !s {
		cached = flat
		return cached, nil
	}

	cached = &layout{config: cfg, data: data, state: state}
	return cached, nil
}

// ConfigDir returns the directory holding config.json.
func ConfigDir() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return l.config, nil
}

// DataDir returns the directory for persistent data.
func DataDir() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return l.data, nil
}

// StateDir returns the directory for logs and other transient state.
func StateDir() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return l.state, nil
}

func under(dirFn func() (string, error), elem ...string) (string, error) {
	dir, err := dirFn()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{dir}, elem...)...), nil
}

// ConfigFilePath returns the global settings file.
func ConfigFilePath() (string, error) { return under(ConfigDir, "config.json") }

// LogsDir returns the directory for log files.
func LogsDir() (string, error) { return under(StateDir, "logs") }

// WorktreesDir returns the default base directory for new worktrees.
func WorktreesDir() (string, error) { return under(DataDir, "worktrees") }

// BinDir returns the directory where per-workspace executables are linked.
func BinDir() (string, error) { return under(DataDir, "bin") }

// IsLegacyLayout reports whether everything lives under ~/.hatchery.
func IsLegacyLayout() bool {
	l, err := current()
	if err != nil {
		return true
	}
	return l.flat
}

// Reset clears the cached layout. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cached = nil
}
