// Package integrate rebases a workspace branch onto trunk and fast-forwards
// trunk to it. Rebase conflicts get one attempt from the conflict agent;
// a refused fast-forward is never worked around.
package integrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zhubert/hatchery/agent"
	"github.com/zhubert/hatchery/errs"
	"github.com/zhubert/hatchery/git"
	"github.com/zhubert/hatchery/safety"
)

// State is a step of the integration state machine.
type State string

const (
	StateValidating         State = "validating"
	StateRebasing           State = "rebasing"
	StateConflictDetected   State = "conflict-detected"
	StateResolvingConflicts State = "resolving-conflicts"
	StateConflictResolved   State = "conflict-resolved"
	StateConflictUnresolved State = "conflict-unresolved"
	StateMerging            State = "merging"
	StateComplete           State = "complete"
	StateFailed             State = "failed"
)

// Options controls a rebase or merge. Force is recorded but does not relax
// any precondition.
type Options struct {
	Force  bool
	DryRun bool
}

// Outcome reports what an operation did and the state it ended in.
type Outcome struct {
	State   State
	History []State
	Branch  string
	Trunk   string
	Commits []git.Commit // commits unique to the branch before the operation
	DryRun  bool

	UpToDate          bool // branch already contained trunk's tip
	Rebased           bool
	ConflictsResolved bool // the agent cleared every conflict
	AlreadyMerged     bool // trunk already contained the branch
	Merged            bool
}

// ConflictPrompt is given to the agent when a rebase stops on conflicts.
const ConflictPrompt = `A git rebase in this directory stopped because of merge conflicts.

Resolve every conflicted file so that both sides' intent is preserved, then:
1. Stage each resolved file with git add.
2. Run git rebase --continue (with GIT_EDITOR=true) and repeat for any further conflicts.

If a conflict cannot be resolved safely, run git rebase --abort instead.
Do not create new commits other than those produced by the rebase itself.`

// Engine runs rebase and fast-forward merge operations against one trunk.
type Engine struct {
	git    *git.GitService
	agent  agent.Agent
	trunk  string
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil agent means conflicts are never
// resolved automatically.
func NewEngine(gitSvc *git.GitService, a agent.Agent, trunk string, logger *slog.Logger) *Engine {
	if a == nil {
		a = agent.Unavailable{}
	}
	return &Engine{git: gitSvc, agent: a, trunk: trunk, logger: logger}
}

// Trunk returns the branch the engine integrates into.
func (e *Engine) Trunk() string {
	return e.trunk
}

func (e *Engine) transition(out *Outcome, to State) {
	from := out.State
	out.State = to
	out.History = append(out.History, to)
	e.logger.Info("integration state", "from", from, "to", to, "branch", out.Branch)
}

func (e *Engine) fail(out *Outcome, err error) error {
	if out.State != StateConflictUnresolved {
		e.transition(out, StateFailed)
	}
	e.logger.Error("integration failed", "branch", out.Branch, "error", err)
	return err
}

// RebaseOntoTrunk rebases the branch checked out in worktreePath onto trunk.
// The worktree must be clean, even in dry-run. A branch that already contains
// trunk's tip succeeds without running the rebase.
func (e *Engine) RebaseOntoTrunk(ctx context.Context, worktreePath string, opts Options) (Outcome, error) {
	const op = "integrate.RebaseOntoTrunk"
	out := Outcome{Trunk: e.trunk, DryRun: opts.DryRun}
	e.transition(&out, StateValidating)

	if !e.git.BranchExists(ctx, worktreePath, e.trunk) {
		return out, e.fail(&out, errs.Validation(op, errs.TrunkMissing,
			"trunk branch %s does not exist locally", e.trunk).
			WithRemediation(fmt.Sprintf("git fetch origin %s:%s", e.trunk, e.trunk)))
	}
	if err := safety.CheckClean(ctx, e.git, op, worktreePath, errs.DirtyWorkingTree); err != nil {
		return out, e.fail(&out, err)
	}

	branch, err := e.git.CurrentBranch(ctx, worktreePath)
	if err != nil {
		return out, e.fail(&out, err)
	}
	out.Branch = branch
	if branch == "" {
		return out, e.fail(&out, errs.Validation(op, errs.UnexpectedBranch,
			"worktree %s has a detached HEAD", worktreePath))
	}
	if opts.Force {
		e.logger.Info("force requested; preconditions still apply", "branch", branch)
	}

	upToDate, err := e.containsTrunk(ctx, worktreePath)
	if err != nil {
		return out, e.fail(&out, err)
	}
	if upToDate {
		e.logger.Info("branch already up to date with trunk", "branch", branch, "trunk", e.trunk)
		out.UpToDate = true
		e.transition(&out, StateComplete)
		return out, nil
	}

	commits, err := e.git.CommitsBetween(ctx, worktreePath, e.trunk, "HEAD")
	if err != nil {
		return out, e.fail(&out, err)
	}
	out.Commits = commits
	e.logger.Info("commits to rebase", "branch", branch, "count", len(commits))

	if opts.DryRun {
		e.transition(&out, StateComplete)
		return out, nil
	}

	e.transition(&out, StateRebasing)
	rebaseErr := e.git.Rebase(ctx, worktreePath, e.trunk)
	if rebaseErr == nil {
		out.Rebased = true
		e.transition(&out, StateComplete)
		return out, nil
	}

	conflicted, err := e.git.GetConflictedFiles(ctx, worktreePath)
	if err != nil {
		return out, e.fail(&out, err)
	}
	if len(conflicted) == 0 {
		return out, e.fail(&out, rebaseErr)
	}

	e.transition(&out, StateConflictDetected)
	e.logger.Warn("rebase stopped on conflicts", "branch", branch, "files", conflicted)

	if err := e.resolveConflicts(ctx, &out, worktreePath, conflicted); err != nil {
		return out, e.fail(&out, err)
	}
	out.Rebased = true
	out.ConflictsResolved = true
	e.transition(&out, StateComplete)
	return out, nil
}

// containsTrunk reports whether HEAD in dir already contains trunk's tip.
func (e *Engine) containsTrunk(ctx context.Context, dir string) (bool, error) {
	mergeBase, err := e.git.MergeBase(ctx, dir, e.trunk, "HEAD")
	if err != nil {
		return false, err
	}
	trunkHead, err := e.git.RevParse(ctx, dir, e.trunk)
	if err != nil {
		return false, err
	}
	return mergeBase == trunkHead, nil
}

// resolveConflicts gives the agent its single attempt and decides the result
// from repository state alone. A rebase still stopped afterwards is unresolved
// even when no conflicted files remain, and so is one the agent aborted:
// HEAD must contain trunk's tip.
func (e *Engine) resolveConflicts(ctx context.Context, out *Outcome, worktreePath string, conflicted []string) error {
	const op = "integrate.RebaseOntoTrunk"

	e.transition(out, StateResolvingConflicts)
	agentErr := e.agent.Invoke(ctx, ConflictPrompt, agent.InvokeOptions{WorkingDirectory: worktreePath})
	if agentErr != nil {
		if errors.Is(agentErr, agent.ErrUnavailable) {
			e.logger.Info("no conflict agent configured", "branch", out.Branch)
		} else {
			e.logger.Warn("conflict agent failed", "branch", out.Branch, "error", agentErr)
		}
	}

	remaining, err := e.git.GetConflictedFiles(ctx, worktreePath)
	if err != nil {
		return err
	}
	if len(remaining) == 0 && !e.git.IsRebaseInProgress(ctx, worktreePath) {
		onTrunk, err := e.containsTrunk(ctx, worktreePath)
		if err != nil {
			return err
		}
		if onTrunk {
			e.transition(out, StateConflictResolved)
			return nil
		}
		e.transition(out, StateConflictUnresolved)
		return errs.Conflict(op, errs.ConflictsUnresolved, conflicted,
			[]string{fmt.Sprintf("git -C %s rebase %s", worktreePath, e.trunk), "hatchery rebase"},
			"rebase of %s onto %s was abandoned: the branch does not contain %s's tip", out.Branch, e.trunk, e.trunk)
	}

	files := remaining
	if len(files) == 0 {
		files = conflicted
	}
	e.transition(out, StateConflictUnresolved)
	return errs.Conflict(op, errs.ConflictsUnresolved, files, conflictRemediation(worktreePath, files),
		"rebase of %s onto %s stopped with %d unresolved conflict(s)", out.Branch, e.trunk, len(files))
}

// AbortRebase abandons a rebase stopped in worktreePath, restoring the
// branch to where it was before RebaseOntoTrunk ran.
func (e *Engine) AbortRebase(ctx context.Context, worktreePath string) error {
	if !e.git.IsRebaseInProgress(ctx, worktreePath) {
		return errs.Validation("integrate.AbortRebase", errs.NoRebaseInProgress,
			"no rebase in progress in %s", worktreePath)
	}
	e.logger.Info("aborting rebase", "dir", worktreePath)
	return e.git.AbortRebase(ctx, worktreePath)
}

func conflictRemediation(worktreePath string, files []string) []string {
	return []string{
		fmt.Sprintf("git -C %s add %s", worktreePath, strings.Join(files, " ")),
		fmt.Sprintf("git -C %s rebase --continue", worktreePath),
		fmt.Sprintf("git -C %s rebase --abort", worktreePath),
	}
}

// ValidateFastForwardPossible fails with NotFastForwardable unless trunk's
// tip is an ancestor of branch.
func (e *Engine) ValidateFastForwardPossible(ctx context.Context, branch, repoRoot string) error {
	const op = "integrate.ValidateFastForwardPossible"
	mergeBase, err := e.git.MergeBase(ctx, repoRoot, e.trunk, branch)
	if err != nil {
		return err
	}
	trunkHead, err := e.git.RevParse(ctx, repoRoot, e.trunk)
	if err != nil {
		return err
	}
	if mergeBase != trunkHead {
		return errs.Validation(op, errs.NotFastForwardable,
			"%s cannot be fast-forwarded to %s: %s has moved since the branch diverged", e.trunk, branch, e.trunk).
			WithRemediation("hatchery rebase", fmt.Sprintf("git rebase %s", e.trunk))
	}
	return nil
}

// PerformFastForwardMerge fast-forwards trunk to branch. The merge runs in
// whichever worktree has trunk checked out, never in worktreePath.
func (e *Engine) PerformFastForwardMerge(ctx context.Context, branch, worktreePath string, opts Options) (Outcome, error) {
	const op = "integrate.PerformFastForwardMerge"
	out := Outcome{Branch: branch, Trunk: e.trunk, DryRun: opts.DryRun}
	e.transition(&out, StateValidating)

	trunkWT, err := e.git.FindWorktreeByBranch(ctx, worktreePath, e.trunk)
	if err != nil {
		return out, e.fail(&out, err)
	}
	if trunkWT == nil {
		return out, e.fail(&out, errs.Validation(op, errs.NoPrimaryWorktreeOnTrunk,
			"no worktree has %s checked out", e.trunk).
			WithRemediation(fmt.Sprintf("git -C <primary worktree> checkout %s", e.trunk)))
	}

	current, err := e.git.CurrentBranch(ctx, trunkWT.Path)
	if err != nil {
		return out, e.fail(&out, err)
	}
	if current != e.trunk {
		return out, e.fail(&out, errs.Validation(op, errs.UnexpectedBranch,
			"worktree %s is on %q, expected %s", trunkWT.Path, current, e.trunk))
	}

	if err := e.ValidateFastForwardPossible(ctx, branch, trunkWT.Path); err != nil {
		return out, e.fail(&out, err)
	}

	commits, err := e.git.CommitsBetween(ctx, trunkWT.Path, e.trunk, branch)
	if err != nil {
		return out, e.fail(&out, err)
	}
	out.Commits = commits
	if len(commits) == 0 {
		e.logger.Info("branch already merged", "branch", branch, "trunk", e.trunk)
		out.AlreadyMerged = true
		e.transition(&out, StateComplete)
		return out, nil
	}
	if opts.DryRun {
		e.transition(&out, StateComplete)
		return out, nil
	}

	e.transition(&out, StateMerging)
	if err := e.git.MergeFastForward(ctx, trunkWT.Path, branch); err != nil {
		return out, e.fail(&out, err)
	}
	out.Merged = true
	e.transition(&out, StateComplete)
	return out, nil
}

// Request names the workspace to integrate.
type Request struct {
	WorktreePath string
	Options      Options
}

// Integrate rebases the workspace onto trunk and fast-forwards trunk to it.
// In dry-run a branch that would need rebasing is not checked for
// fast-forward, since the rebase that would make it possible did not run.
func (e *Engine) Integrate(ctx context.Context, req Request) (Outcome, error) {
	rebased, err := e.RebaseOntoTrunk(ctx, req.WorktreePath, req.Options)
	if err != nil {
		return rebased, err
	}
	if rebased.Branch == "" || rebased.Branch == e.trunk {
		return rebased, e.fail(&rebased, errs.Validation("integrate.Integrate", errs.UnexpectedBranch,
			"worktree %s has no feature branch checked out", req.WorktreePath))
	}
	if req.Options.DryRun && !rebased.UpToDate {
		return rebased, nil
	}

	merged, err := e.PerformFastForwardMerge(ctx, rebased.Branch, req.WorktreePath, req.Options)
	merged.History = append(rebased.History, merged.History...)
	merged.UpToDate = rebased.UpToDate
	merged.Rebased = rebased.Rebased
	merged.ConflictsResolved = rebased.ConflictsResolved
	return merged, err
}
