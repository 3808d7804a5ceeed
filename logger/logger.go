// Package logger provides the process-wide slog logger. Output goes to a text
// log file (hatchery.log under paths.LogsDir by default) so the terminal stays
// reserved for command results.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zhubert/hatchery/paths"
)

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	initDone bool
)

// DefaultLogPath returns the log file used when Init is not called.
func DefaultLogPath() (string, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hatchery.log"), nil
}

// SetDebug enables or disables debug level logging.
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// open points the root logger at path. Caller must hold mu.
func open(path string) error {
	if path != os.DevNull {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true
	root.Debug("logger initialized", "path", path)
	return nil
}

// Init initializes the logger at path. Later calls are no-ops until Reset.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if initDone {
		return nil
	}
	return open(path)
}

// ensureInit opens the default log file on first use. Caller must hold mu.
func ensureInit() {
	if initDone {
		return
	}
	path, err := DefaultLogPath()
	if err == nil {
		err = open(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
}

func with(args ...any) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	ensureInit()
	l := root
	if l == nil {
		l = slog.Default()
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}

// Get returns the root logger.
func Get() *slog.Logger { return with() }

// WithComponent returns a logger tagged with the component name.
//
//	log := logger.WithComponent("git")
//	log.Info("worktree removed", "path", path)
//	// level=INFO msg="worktree removed" component=git path=/path
func WithComponent(component string) *slog.Logger {
	return with("component", component)
}

// WithOperation returns a logger tagged with a cleanup or integration run ID,
// so every line of one run can be grepped together.
func WithOperation(component, operationID string) *slog.Logger {
	return with("component", component, "operationID", operationID)
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset clears logger state so Init can run again. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	root = nil
	levelVar = new(slog.LevelVar)
}

// ClearLogs removes hatchery log files and returns how many were deleted.
func ClearLogs() (int, error) {
	defaultPath, err := DefaultLogPath()
	if err != nil {
		return 0, fmt.Errorf("failed to get default log path: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(defaultPath), "hatchery*.log"))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range matches {
		if err := os.Remove(p); err == nil {
			count++
		} else if !os.IsNotExist(err) {
			return count, err
		}
	}
	return count, nil
}
