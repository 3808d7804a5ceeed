// Package database manages per-workspace database branches on hosted
// providers that support branching. Providers are selected once from
// settings; cleanup talks to them only through Provider.
package database

import (
	"context"
	"fmt"

	"github.com/zhubert/hatchery/config"
	pexec "github.com/zhubert/hatchery/exec"
)

// Status is the outcome of a branch deletion.
type Status string

const (
	// Deleted means the branch existed and was removed.
	Deleted Status = "deleted"
	// NotFound means there was nothing to delete. Not an error.
	NotFound Status = "not-found"
	// Declined means the operator vetoed the deletion.
	Declined Status = "declined"
	// Failed means the provider could not delete the branch.
	Failed Status = "failed"
)

// DeletionOutcome tells apart the four ways a deletion can end, since a
// provider call that returns without error has not necessarily removed anything.
type DeletionOutcome struct {
	Status  Status
	Branch  string
	Message string
	Err     error // set only for Failed
}

// IsError reports whether the outcome should count as a hard failure.
func (o DeletionOutcome) IsError() bool { return o.Status == Failed }

// Provider is the capability set every database-branch vendor implements.
type Provider interface {
	Name() string
	IsConfigured() bool
	IsCLIAvailable(ctx context.Context) bool
	// IsAuthenticated returns false when the CLI is logged out and an error
	// only when the check itself could not run.
	IsAuthenticated(ctx context.Context, cwd string) (bool, error)
	CreateBranch(ctx context.Context, name, from, cwd string) (connString string, err error)
	DeleteBranch(ctx context.Context, name string, isPreview bool, cwd string) DeletionOutcome
	SanitizeBranchName(name string) string
}

// Confirmer asks the operator to approve a destructive action.
type Confirmer interface {
	Confirm(title, description string) (bool, error)
}

// New returns the provider named in settings, or nil when none is configured.
func New(s config.DatabaseSettings, executor pexec.CommandExecutor, confirmer Confirmer) (Provider, error) {
	if confirmer == nil {
		confirmer = AlwaysConfirm{}
	}
	switch s.Provider {
	case "":
		return nil, nil
	case "neon":
		return NewNeon(s, executor, confirmer), nil
	}
	return nil, fmt.Errorf("unknown database provider %q", s.Provider)
}
