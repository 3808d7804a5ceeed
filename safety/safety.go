// Package safety holds the precondition checks shared by worktree removal,
// integration and cleanup: protected branches, uncommitted changes and the
// primary-worktree guard. Checks never run commands that mutate the repository.
package safety

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/zhubert/hatchery/errs"
)

// StatusReader reports whether a worktree has pending changes.
type StatusReader interface {
	HasUncommittedChanges(ctx context.Context, worktreePath string) (bool, error)
}

// ProtectedBranches returns the configured protected branches with trunk
// always included. Empty names are dropped and duplicates removed.
func ProtectedBranches(trunk string, configured []string) []string {
	out := make([]string, 0, len(configured)+1)
	for _, b := range append([]string{trunk}, configured...) {
		b = strings.TrimSpace(b)
		if b == "" || slices.Contains(out, b) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// IsProtected reports whether branch is in the protected list.
func IsProtected(branch string, protected []string) bool {
	return slices.Contains(protected, strings.TrimSpace(branch))
}

// CheckBranchDeletable fails with ProtectedBranch when branch is protected.
func CheckBranchDeletable(op, branch string, protected []string) error {
	if IsProtected(branch, protected) {
		return errs.Validation(op, errs.ProtectedBranch,
			"refusing to delete protected branch %q (protected: %s)", branch, strings.Join(protected, ", "))
	}
	return nil
}

// CheckNotPrimary fails with PrimaryWorktree when the target is the primary worktree.
func CheckNotPrimary(op, path string, isPrimary bool) error {
	if isPrimary {
		return errs.Validation(op, errs.PrimaryWorktree,
			"%s is the primary worktree and cannot be removed", path)
	}
	return nil
}

// CheckClean fails with code when the worktree has uncommitted changes.
// A failed status read is returned as-is.
func CheckClean(ctx context.Context, r StatusReader, op, path string, code errs.Code) error {
	dirty, err := r.HasUncommittedChanges(ctx, path)
	if err != nil {
		return err
	}
	if dirty {
		return errs.Validation(op, code, "worktree %s has uncommitted changes", path).
			WithRemediation(
				fmt.Sprintf("git -C %s commit -am \"wip\"", path),
				fmt.Sprintf("git -C %s stash", path),
				"or re-run with --force",
			)
	}
	return nil
}
