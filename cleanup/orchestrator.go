// Package cleanup tears a workspace down: its dev server, worktree, branch,
// generated executables and database branch. Preconditions are all checked
// before the first destructive command; after that every step runs and
// records its own result so one failure does not strand the others.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/zhubert/hatchery/binlinks"
	"github.com/zhubert/hatchery/config"
	"github.com/zhubert/hatchery/database"
	"github.com/zhubert/hatchery/envfile"
	"github.com/zhubert/hatchery/errs"
	"github.com/zhubert/hatchery/git"
	"github.com/zhubert/hatchery/identifier"
	"github.com/zhubert/hatchery/logger"
	"github.com/zhubert/hatchery/process"
	"github.com/zhubert/hatchery/safety"
)

// Options controls a cleanup run.
type Options struct {
	Force        bool // skip the clean/primary gate and use forced removal
	DryRun       bool
	DeleteBranch bool
	KeepDatabase bool
	BranchHint   string // branch to try first when looking up a PR
}

// Orchestrator runs cleanups against one repository.
type Orchestrator struct {
	repo      string
	settings  config.Settings
	protected []string
	git       *git.GitService
	processes process.Lifecycle
	db        database.Provider

	readEnv func(dir string, files []string, key string) (value, source string, err error)
}

// NewOrchestrator creates an Orchestrator for the repository at repo. A nil
// provider disables database cleanup.
func NewOrchestrator(repo string, settings config.Settings, gitSvc *git.GitService, processes process.Lifecycle, db database.Provider) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		settings:  settings,
		protected: safety.ProtectedBranches(settings.TrunkBranch, settings.ProtectedBranches),
		git:       gitSvc,
		processes: processes,
		db:        db,
		readEnv:   envfile.Lookup,
	}
}

// prefetched is what later steps need after the worktree directory is gone.
type prefetched struct {
	primaryPath string
	dbBranch    string // empty when the workspace has no database branch to clean
}

// Cleanup tears down the workspace for id. A returned error means a
// precondition failed and nothing was changed. A missing worktree is not an
// error: the Result reports it and is unsuccessful.
func (o *Orchestrator) Cleanup(ctx context.Context, id identifier.Parsed, opts Options) (*Result, error) {
	const op = "cleanup.Cleanup"
	result := &Result{OperationID: uuid.NewString(), Identifier: id, DryRun: opts.DryRun}
	log := logger.WithOperation("cleanup", result.OperationID)
	log.Info("starting cleanup", "identifier", id.String(), "force", opts.Force, "dryRun", opts.DryRun,
		"deleteBranch", opts.DeleteBranch, "keepDatabase", opts.KeepDatabase)

	wt, err := identifier.Find(ctx, o.git, o.repo, id, opts.BranchHint)
	if err != nil {
		return result, err
	}
	if wt == nil {
		log.Warn("no worktree found", "identifier", id.String())
		result.record(failed(KindWorktree, fmt.Sprintf("No worktree found for %s", id),
			errs.NotFound(op, errs.WorktreeNotFound, "no worktree found for %s", id)))
		return result, nil
	}
	result.WorktreePath = wt.Path
	result.Branch = wt.Branch

	if err := o.validate(ctx, wt, opts); err != nil {
		log.Warn("cleanup refused", "path", wt.Path, "error", err)
		return result, err
	}

	if id.HasNumber() {
		result.record(o.stopDevServer(ctx, log, o.settings.Port(id.Number), opts))
	}

	pre := o.prefetch(ctx, log, wt, opts)

	result.record(o.removeWorktree(ctx, wt, opts))
	if opts.DeleteBranch {
		result.record(o.deleteBranch(ctx, wt.Branch, pre.primaryPath, opts))
	}
	if linkOp, ok := o.removeLinks(log, id, opts); ok {
		result.record(linkOp)
	}
	if pre.dbBranch != "" {
		result.record(o.deleteDatabase(ctx, pre, opts))
	}

	log.Info("cleanup finished", "success", result.Success, "operations", len(result.Operations))
	return result, nil
}

// validate runs every precondition. Nothing here mutates the repository.
func (o *Orchestrator) validate(ctx context.Context, wt *git.Worktree, opts Options) error {
	const op = "cleanup.Cleanup"
	if opts.DeleteBranch && wt.Branch != "" {
		if err := safety.CheckBranchDeletable(op, wt.Branch, o.protected); err != nil {
			return err
		}
	}
	if opts.Force {
		return nil
	}
	if err := safety.CheckNotPrimary(op, wt.Path, wt.Primary); err != nil {
		return err
	}
	return safety.CheckClean(ctx, o.git, op, wt.Path, errs.UncommittedChanges)
}

func (o *Orchestrator) stopDevServer(ctx context.Context, log *slog.Logger, port int, opts Options) Operation {
	const op = "cleanup.stopDevServer"
	if o.processes == nil {
		return succeeded(KindDevProcess, "Process detection unavailable; skipped", false)
	}
	l, err := o.processes.DetectListener(ctx, port)
	if err != nil {
		return failed(KindDevProcess, fmt.Sprintf("Could not inspect port %d", port), err)
	}
	if l == nil {
		return succeeded(KindDevProcess, fmt.Sprintf("No process listening on port %d", port), false)
	}
	if !l.LooksLikeDevServer {
		return succeeded(KindDevProcess,
			fmt.Sprintf("Port %d is held by %s (pid %d), which is not a dev server; left running", port, l.Name, l.PID), false)
	}
	if opts.DryRun {
		return succeeded(KindDevProcess, fmt.Sprintf("Would stop %s (pid %d) on port %d", l.Name, l.PID, port), false)
	}

	log.Info("stopping dev server", "pid", l.PID, "name", l.Name, "port", port)
	if err := o.processes.Terminate(ctx, l.PID); err != nil {
		return failed(KindDevProcess, fmt.Sprintf("Failed to stop %s (pid %d)", l.Name, l.PID), err)
	}
	free, err := o.processes.VerifyPortFree(ctx, port)
	if err != nil {
		return failed(KindDevProcess, fmt.Sprintf("Could not confirm port %d was released", port), err)
	}
	if !free {
		err := errs.Execution(op, errs.PortStillBound, nil, nil, "port %d is still bound after stopping pid %d", port, l.PID).
			WithRemediation(fmt.Sprintf("lsof -nP -iTCP:%d -sTCP:LISTEN", port), fmt.Sprintf("kill -9 %d", l.PID))
		return failed(KindDevProcess, fmt.Sprintf("Port %d is still in use", port), err)
	}
	return succeeded(KindDevProcess, fmt.Sprintf("Stopped %s (pid %d) on port %d", l.Name, l.PID, port), true)
}

// prefetch reads everything the branch and database steps need while the
// worktree still exists. Failures only disable the steps that needed them.
func (o *Orchestrator) prefetch(ctx context.Context, log *slog.Logger, wt *git.Worktree, opts Options) prefetched {
	var pre prefetched

	primary, err := o.git.PrimaryWorktreePath(ctx, o.repo)
	if err != nil {
		log.Warn("could not locate primary worktree", "error", err)
	} else {
		pre.primaryPath = primary
	}

	if opts.KeepDatabase {
		return pre
	}
	value, source, err := o.readEnv(wt.Path, o.settings.EnvFiles, o.settings.Database.EnvVar)
	if err != nil {
		log.Warn("could not read env files; database cleanup skipped", "path", wt.Path, "error", err)
		return pre
	}
	if value == "" {
		log.Debug("workspace has no database connection", "envVar", o.settings.Database.EnvVar)
		return pre
	}
	if wt.Primary || safety.IsProtected(wt.Branch, o.protected) {
		log.Info("database branch of a protected checkout is never cleaned up", "branch", wt.Branch)
		return pre
	}
	if o.db == nil || !o.db.IsConfigured() || wt.Branch == "" {
		log.Debug("database cleanup not applicable", "source", source)
		return pre
	}
	pre.dbBranch = o.db.SanitizeBranchName(wt.Branch)
	log.Info("workspace owns a database branch", "branch", pre.dbBranch, "source", source)
	return pre
}

func (o *Orchestrator) removeWorktree(ctx context.Context, wt *git.Worktree, opts Options) Operation {
	if opts.DryRun {
		return succeeded(KindWorktree, fmt.Sprintf("Would remove worktree %s", wt.Path), false)
	}
	err := o.git.RemoveWorktree(ctx, o.repo, wt.Path, git.RemoveOptions{
		Force:           opts.Force,
		RemoveDirectory: true,
	})
	if err != nil {
		return failed(KindWorktree, fmt.Sprintf("Failed to remove worktree %s", wt.Path), err)
	}
	return succeeded(KindWorktree, fmt.Sprintf("Removed worktree %s", wt.Path), true)
}

func (o *Orchestrator) deleteBranch(ctx context.Context, branch, primaryPath string, opts Options) Operation {
	if branch == "" {
		return succeeded(KindBranch, "Worktree had a detached HEAD; no branch to delete", false)
	}
	if primaryPath == "" {
		return succeeded(KindBranch, fmt.Sprintf("Skipped deleting %s: primary worktree unknown", branch), false)
	}
	if opts.DryRun {
		return succeeded(KindBranch, fmt.Sprintf("Would delete branch %s", branch), false)
	}
	err := o.git.DeleteBranch(ctx, primaryPath, branch, git.DeleteOptions{
		Force:             opts.Force,
		ProtectedBranches: o.protected,
	})
	if err != nil {
		return failed(KindBranch, fmt.Sprintf("Failed to delete branch %s", branch), err)
	}
	return succeeded(KindBranch, fmt.Sprintf("Deleted branch %s", branch), true)
}

// removeLinks reports ok=false when there is nothing to record.
func (o *Orchestrator) removeLinks(log *slog.Logger, id identifier.Parsed, opts Options) (Operation, bool) {
	suffix := id.Suffix()
	links, err := binlinks.Find(o.settings.BinDir, suffix)
	if err != nil {
		return failed(KindCLISymlinks, fmt.Sprintf("Could not list %s", o.settings.BinDir), err), true
	}
	if len(links) == 0 {
		return Operation{}, false
	}
	if opts.DryRun {
		return succeeded(KindCLISymlinks, fmt.Sprintf("Would remove %d executable(s) matching %s", len(links), binlinks.Pattern(suffix)), false), true
	}
	removed, err := binlinks.Remove(links)
	if err != nil {
		return failed(KindCLISymlinks, fmt.Sprintf("Removed %d of %d executable(s)", len(removed), len(links)), err), true
	}
	log.Info("removed executables", "count", len(removed))
	return succeeded(KindCLISymlinks, fmt.Sprintf("Removed %d executable(s): %s", len(removed), baseNames(removed)), true), true
}

func (o *Orchestrator) deleteDatabase(ctx context.Context, pre prefetched, opts Options) Operation {
	if pre.primaryPath == "" {
		return succeeded(KindDatabase, fmt.Sprintf("Skipped database branch %s: primary worktree unknown", pre.dbBranch), false)
	}
	if opts.DryRun {
		return succeeded(KindDatabase, fmt.Sprintf("Would delete %s database branch %s", o.db.Name(), pre.dbBranch), false)
	}
	out := o.db.DeleteBranch(ctx, pre.dbBranch, false, pre.primaryPath)
	if out.IsError() {
		err := out.Err
		if err == nil {
			err = errs.Execution("cleanup.deleteDatabase", errs.ProviderFailed, nil, nil, "%s", out.Message)
		}
		return failed(KindDatabase, fmt.Sprintf("Failed to delete database branch %s", pre.dbBranch), err)
	}
	switch out.Status {
	case database.NotFound:
		return succeeded(KindDatabase, fmt.Sprintf("Database branch %s not found; nothing to delete", pre.dbBranch), false)
	case database.Declined:
		return succeeded(KindDatabase, fmt.Sprintf("Kept database branch %s", pre.dbBranch), false)
	}
	return succeeded(KindDatabase, fmt.Sprintf("Deleted database branch %s", pre.dbBranch), true)
}

// CleanupMany cleans up each identifier in turn, never concurrently. A
// refused identifier does not stop the rest; its error is joined into the
// returned error.
func (o *Orchestrator) CleanupMany(ctx context.Context, ids []identifier.Parsed, opts Options) ([]*Result, error) {
	results := make([]*Result, 0, len(ids))
	var errList []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errList = append(errList, err)
			break
		}
		r, err := o.Cleanup(ctx, id, opts)
		results = append(results, r)
		if err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", id, err))
		}
	}
	return results, errors.Join(errList...)
}

func baseNames(paths []string) string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return strings.Join(names, ", ")
}
