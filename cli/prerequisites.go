// Package cli checks that the external tools hatchery drives are installed.
package cli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/zhubert/hatchery/config"
	pexec "github.com/zhubert/hatchery/exec"
)

// Prerequisite is an external command hatchery may run.
type Prerequisite struct {
	Name        string
	Required    bool
	Description string
	InstallURL  string
	Feature     string // what stops working without it
}

// Prerequisites returns the tools the given settings make use of. git is
// always required; the agent and database CLIs only appear when enabled.
func Prerequisites(s config.Settings) []Prerequisite {
	prereqs := []Prerequisite{
		{
			Name:        "git",
			Required:    true,
			Description: "Git version control",
			InstallURL:  "https://git-scm.com/downloads",
		},
		{
			Name:        "lsof",
			Description: "List open files",
			InstallURL:  "https://github.com/lsof-org/lsof",
			Feature:     "dev server shutdown during cleanup",
		},
		{
			Name:        "gh",
			Description: "GitHub CLI",
			InstallURL:  "https://cli.github.com",
			Feature:     "issue titles and pull request branches in workspace names",
		},
	}
	if s.AgentEnabled() {
		prereqs = append(prereqs, Prerequisite{
			Name:        s.Agent.Command,
			Description: "Conflict resolution agent",
			InstallURL:  "https://claude.ai/code",
			Feature:     "automatic rebase conflict resolution",
		})
	}
	if s.Database.Provider == "neon" {
		prereqs = append(prereqs, Prerequisite{
			Name:        "neonctl",
			Description: "Neon CLI",
			InstallURL:  "https://neon.tech/docs/reference/neon-cli",
			Feature:     "database branch cleanup",
		})
	}
	return prereqs
}

// CheckResult is the outcome of looking for one prerequisite.
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string
	Version      string
	Error        error
}

// Checker looks prerequisites up on PATH and asks them for a version.
type Checker struct {
	executor pexec.CommandExecutor
	lookPath func(string) (string, error)
}

// NewChecker creates a Checker asking tools for their version through executor.
func NewChecker(executor pexec.CommandExecutor) *Checker {
	return &Checker{executor: executor, lookPath: exec.LookPath}
}

// Check verifies that prereq is on PATH.
func (c *Checker) Check(ctx context.Context, prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	path, err := c.lookPath(prereq.Name)
	if err != nil {
		result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
		return result
	}
	result.Found = true
	result.Path = path
	result.Version = c.version(ctx, prereq.Name)
	return result
}

// CheckAll checks every prerequisite in order.
func (c *Checker) CheckAll(ctx context.Context, prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, p := range prereqs {
		results[i] = c.Check(ctx, p)
	}
	return results
}

// ValidateRequired returns an error naming every missing required tool.
func ValidateRequired(results []CheckResult) error {
	var missing []string
	for _, r := range results {
		if r.Found || !r.Prerequisite.Required {
			continue
		}
		missing = append(missing, fmt.Sprintf("  - %s (%s)\n    Install: %s",
			r.Prerequisite.Name, r.Prerequisite.Description, r.Prerequisite.InstallURL))
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required CLI tools:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

const maxVersionLen = 100

func (c *Checker) version(ctx context.Context, name string) string {
	for _, flag := range []string{"--version", "-v", "version"} {
		out, err := c.executor.Output(ctx, "", name, flag)
		if err != nil {
			continue
		}
		first, _, _ := strings.Cut(string(out), "\n")
		v := strings.TrimSpace(first)
		if v == "" {
			continue
		}
		if len(v) > maxVersionLen {
			v = v[:maxVersionLen] + "..."
		}
		return v
	}
	return ""
}
