package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhubert/hatchery/config"
	"github.com/zhubert/hatchery/errs"
	pexec "github.com/zhubert/hatchery/exec"
	"github.com/zhubert/hatchery/git"
	"github.com/zhubert/hatchery/logger"
)

const neonCLI = "neonctl"

// Neon manages branches through the neonctl CLI.
type Neon struct {
	settings  config.DatabaseSettings
	executor  pexec.CommandExecutor
	confirmer Confirmer
}

// NewNeon creates a Neon provider.
func NewNeon(s config.DatabaseSettings, executor pexec.CommandExecutor, confirmer Confirmer) *Neon {
	if confirmer == nil {
		confirmer = AlwaysConfirm{}
	}
	return &Neon{settings: s, executor: executor, confirmer: confirmer}
}

func (n *Neon) Name() string { return "neon" }

// IsConfigured reports whether a project is set.
func (n *Neon) IsConfigured() bool {
	return n.settings.ProjectID != ""
}

func (n *Neon) IsCLIAvailable(ctx context.Context) bool {
	_, _, err := n.executor.Run(ctx, "", neonCLI, "--version")
	return err == nil
}

func (n *Neon) IsAuthenticated(ctx context.Context, cwd string) (bool, error) {
	stdout, stderr, err := n.executor.Run(ctx, cwd, neonCLI, "me", "--output", "json")
	if err != nil {
		msg := strings.ToLower(string(stderr))
		if strings.Contains(msg, "auth") || strings.Contains(msg, "login") || strings.Contains(msg, "401") {
			return false, nil
		}
		return false, errs.Execution("neon.IsAuthenticated", errs.ProviderFailed, err, stderr, "could not check neonctl login")
	}
	var me struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(stdout, &me); err != nil {
		return false, fmt.Errorf("parse neonctl me output: %w", err)
	}
	return me.ID != "" || me.Email != "", nil
}

func (n *Neon) projectArgs(args ...string) []string {
	args = append(args, "--project-id", n.settings.ProjectID)
	return args
}

// CreateBranch creates name from parent (the configured parent branch when
// from is empty) and returns its connection string.
func (n *Neon) CreateBranch(ctx context.Context, name, from, cwd string) (string, error) {
	log := logger.WithComponent("database")
	if from == "" {
		from = n.settings.ParentBranch
	}

	args := n.projectArgs("branches", "create", "--name", name, "--output", "json")
	if from != "" {
		args = append(args, "--parent", from)
	}
	if _, stderr, err := n.executor.Run(ctx, cwd, neonCLI, args...); err != nil {
		return "", errs.Execution("neon.CreateBranch", errs.ProviderFailed, err, stderr, "failed to create database branch %s", name)
	}
	log.Info("created database branch", "branch", name, "parent", from)

	out, stderr, err := n.executor.Run(ctx, cwd, neonCLI, n.projectArgs("connection-string", name)...)
	if err != nil {
		return "", errs.Execution("neon.CreateBranch", errs.ProviderFailed, err, stderr, "failed to read connection string for %s", name)
	}
	return strings.TrimSpace(string(out)), nil
}

// exists reports whether name is a branch of the project.
func (n *Neon) exists(ctx context.Context, name, cwd string) (bool, error) {
	out, stderr, err := n.executor.Run(ctx, cwd, neonCLI, n.projectArgs("branches", "list", "--output", "json")...)
	if err != nil {
		return false, errs.Execution("neon.DeleteBranch", errs.ProviderFailed, err, stderr, "failed to list database branches")
	}
	var branches []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(out, &branches); err != nil {
		return false, fmt.Errorf("parse neonctl branches output: %w", err)
	}
	for _, b := range branches {
		if b.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// DeleteBranch removes name. Preview branches are deleted without asking;
// anything else goes through the confirmer first.
func (n *Neon) DeleteBranch(ctx context.Context, name string, isPreview bool, cwd string) DeletionOutcome {
	log := logger.WithComponent("database")
	outcome := DeletionOutcome{Branch: name}

	found, err := n.exists(ctx, name, cwd)
	if err != nil {
		outcome.Status, outcome.Err = Failed, err
		outcome.Message = fmt.Sprintf("could not look up database branch %s", name)
		return outcome
	}
	if !found {
		outcome.Status = NotFound
		outcome.Message = fmt.Sprintf("database branch %s does not exist", name)
		return outcome
	}

	if !isPreview {
		ok, err := n.confirmer.Confirm(
			fmt.Sprintf("Delete database branch %s?", name),
			fmt.Sprintf("Neon project %s. This cannot be undone.", n.settings.ProjectID),
		)
		if err != nil {
			outcome.Status, outcome.Err = Failed, err
			outcome.Message = "confirmation failed"
			return outcome
		}
		if !ok {
			log.Info("database branch deletion declined", "branch", name)
			outcome.Status = Declined
			outcome.Message = fmt.Sprintf("kept database branch %s", name)
			return outcome
		}
	}

	if _, stderr, err := n.executor.Run(ctx, cwd, neonCLI, n.projectArgs("branches", "delete", name)...); err != nil {
		outcome.Status = Failed
		outcome.Err = errs.Execution("neon.DeleteBranch", errs.ProviderFailed, err, stderr, "failed to delete database branch %s", name)
		outcome.Message = outcome.Err.Error()
		return outcome
	}
	log.Info("deleted database branch", "branch", name)
	outcome.Status = Deleted
	outcome.Message = fmt.Sprintf("deleted database branch %s", name)
	return outcome
}

// neonMaxNameLen is neonctl's branch name limit.
const neonMaxNameLen = 63

// SanitizeBranchName uses the same mapping as worktree directories, cut to
// the length neonctl accepts.
func (n *Neon) SanitizeBranchName(name string) string {
	s := git.SanitizeBranchName(name)
	if len(s) > neonMaxNameLen {
		s = strings.TrimRight(s[:neonMaxNameLen], "-")
	}
	return s
}
