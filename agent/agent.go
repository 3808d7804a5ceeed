// Package agent invokes an AI coding agent to resolve rebase conflicts. The
// agent is best-effort: callers must reach a well-defined state whether it
// succeeds, fails or is absent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pexec "github.com/zhubert/hatchery/exec"
	"github.com/zhubert/hatchery/logger"
)

// InvokeOptions scopes one agent run.
type InvokeOptions struct {
	WorkingDirectory string
	Interactive      bool
}

// Agent runs a prompt to completion.
type Agent interface {
	Invoke(ctx context.Context, prompt string, opts InvokeOptions) error
}

// ErrUnavailable is returned when no agent is configured.
var ErrUnavailable = errors.New("no conflict-resolution agent configured")

// Tools the agent may use without prompting while resolving conflicts.
var conflictTools = []string{"Read", "Edit", "Write", "Bash(git:*)"}

// ClaudeCLI runs the claude CLI once per Invoke.
type ClaudeCLI struct {
	executor pexec.CommandExecutor
	command  string
	timeout  time.Duration
}

// NewClaudeCLI creates a ClaudeCLI running command with a per-call timeout.
// A zero timeout means no limit beyond ctx.
func NewClaudeCLI(executor pexec.CommandExecutor, command string, timeout time.Duration) *ClaudeCLI {
	if command == "" {
		command = "claude"
	}
	return &ClaudeCLI{executor: executor, command: command, timeout: timeout}
}

// Args returns the command line for prompt. Non-interactive runs use --print
// so the agent exits when done.
func (c *ClaudeCLI) Args(prompt string, opts InvokeOptions) []string {
	var args []string
	if !opts.Interactive {
		args = append(args, "--print")
	}
	args = append(args, prompt,
		"--permission-mode", "acceptEdits",
		"--allowedTools", strings.Join(conflictTools, ","),
	)
	return args
}

// Invoke runs the agent in opts.WorkingDirectory and waits for it to exit.
func (c *ClaudeCLI) Invoke(ctx context.Context, prompt string, opts InvokeOptions) error {
	log := logger.WithComponent("agent")

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	log.Info("invoking agent", "command", c.command, "dir", opts.WorkingDirectory, "timeout", c.timeout)
	out, err := c.executor.CombinedOutput(ctx, opts.WorkingDirectory, c.command, c.Args(prompt, opts)...)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (after %s)", ctx.Err(), time.Since(start).Round(time.Second))
		}
		log.Warn("agent failed", "error", err, "output", tail(string(out), 2000))
		return fmt.Errorf("agent %s failed: %w", c.command, err)
	}
	log.Info("agent finished", "duration", time.Since(start))
	log.Debug("agent output", "output", tail(string(out), 2000))
	return nil
}

// tail keeps the last n bytes of s for logging.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Unavailable is the Agent used when none is configured.
type Unavailable struct{}

func (Unavailable) Invoke(context.Context, string, InvokeOptions) error { return ErrUnavailable }

var (
	_ Agent = (*ClaudeCLI)(nil)
	_ Agent = Unavailable{}
)
