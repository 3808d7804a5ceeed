// Package process finds and stops the development server bound to a
// workspace's port. It shells out to lsof, ps and kill through an injected
// executor so tests never touch real processes.
package process

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	pexec "github.com/zhubert/hatchery/exec"
	"github.com/zhubert/hatchery/logger"
)

// Listener is a process listening on a TCP port.
type Listener struct {
	PID                int
	Name               string // short command name from ps
	Command            string // full command line
	LooksLikeDevServer bool
}

// Lifecycle detects and terminates listeners. *Manager implements it.
type Lifecycle interface {
	DetectListener(ctx context.Context, port int) (*Listener, error)
	Terminate(ctx context.Context, pid int) error
	VerifyPortFree(ctx context.Context, port int) (bool, error)
}

const (
	defaultSettle   = 250 * time.Millisecond
	defaultAttempts = 8
)

// Manager implements Lifecycle with lsof, ps and kill.
type Manager struct {
	executor       pexec.CommandExecutor
	devServerNames []string
	settle         time.Duration
	attempts       int
	sleep          func(context.Context, time.Duration) error
}

// NewManager creates a Manager treating devServerNames as development servers.
func NewManager(executor pexec.CommandExecutor, devServerNames []string) *Manager {
	return &Manager{
		executor:       executor,
		devServerNames: devServerNames,
		settle:         defaultSettle,
		attempts:       defaultAttempts,
		sleep:          sleepCtx,
	}
}

// WithPolling overrides how often and how many times VerifyPortFree checks.
func (m *Manager) WithPolling(settle time.Duration, attempts int) *Manager {
	m.settle = settle
	m.attempts = max(attempts, 1)
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DetectListener returns the first process listening on port, or nil.
func (m *Manager) DetectListener(ctx context.Context, port int) (*Listener, error) {
	log := logger.WithComponent("process")

	stdout, stderr, err := m.executor.Run(ctx, "", "lsof", "-nP", "-iTCP:"+strconv.Itoa(port), "-sTCP:LISTEN", "-t")
	if err != nil {
		// lsof exits 1 with no output when nothing matches.
		if strings.TrimSpace(string(stdout)) == "" && strings.TrimSpace(string(stderr)) == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof on port %d failed: %s: %w", port, strings.TrimSpace(string(stderr)), err)
	}

	for _, field := range strings.Fields(string(stdout)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		name := m.psField(ctx, pid, "comm=")
		cmdline := m.psField(ctx, pid, "args=")
		l := &Listener{
			PID:                pid,
			Name:               filepath.Base(name),
			Command:            cmdline,
			LooksLikeDevServer: m.looksLikeDevServer(name, cmdline),
		}
		log.Debug("found listener", "port", port, "pid", pid, "name", l.Name, "devServer", l.LooksLikeDevServer)
		return l, nil
	}
	return nil, nil
}

func (m *Manager) psField(ctx context.Context, pid int, field string) string {
	out, err := m.executor.Output(ctx, "", "ps", "-p", strconv.Itoa(pid), "-o", field)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// looksLikeDevServer matches the command name, or any word of the command
// line, against the configured dev server names.
func (m *Manager) looksLikeDevServer(name, cmdline string) bool {
	if name != "" && slices.Contains(m.devServerNames, filepath.Base(name)) {
		return true
	}
	for _, word := range strings.Fields(cmdline) {
		if slices.Contains(m.devServerNames, filepath.Base(word)) {
			return true
		}
	}
	return false
}

// Terminate sends SIGTERM to pid.
func (m *Manager) Terminate(ctx context.Context, pid int) error {
	logger.WithComponent("process").Info("terminating process", "pid", pid)
	_, stderr, err := m.executor.Run(ctx, "", "kill", "-TERM", strconv.Itoa(pid))
	if err != nil {
		return fmt.Errorf("kill %d failed: %s: %w", pid, strings.TrimSpace(string(stderr)), err)
	}
	return nil
}

// VerifyPortFree polls until nothing listens on port or attempts run out.
func (m *Manager) VerifyPortFree(ctx context.Context, port int) (bool, error) {
	for i := range m.attempts {
		l, err := m.DetectListener(ctx, port)
		if err != nil {
			return false, err
		}
		if l == nil {
			return true, nil
		}
		if i < m.attempts-1 {
			if err := m.sleep(ctx, m.settle); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

var _ Lifecycle = (*Manager)(nil)
