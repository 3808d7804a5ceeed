package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhubert/hatchery/errs"
	"github.com/zhubert/hatchery/logger"
	"github.com/zhubert/hatchery/safety"
)

// Commit is a one-line summary of a commit.
type Commit struct {
	Hash    string
	Subject string
}

func (c Commit) String() string {
	short := c.Hash
	if len(short) > 7 {
		short = short[:7]
	}
	return short + " " + c.Subject
}

// DeleteOptions controls DeleteBranch.
type DeleteOptions struct {
	Force             bool // -D instead of -d
	ProtectedBranches []string
}

// BranchExists reports whether refs/heads/branch exists in repo.
func (s *GitService) BranchExists(ctx context.Context, repo, branch string) bool {
	_, _, err := s.executor.Run(ctx, repo, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// CurrentBranch returns the branch checked out in dir, or "" when detached.
func (s *GitService) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return s.run(ctx, "git.CurrentBranch", dir, "branch", "--show-current")
}

// MergeBase returns the best common ancestor of a and b.
func (s *GitService) MergeBase(ctx context.Context, dir, a, b string) (string, error) {
	return s.run(ctx, "git.MergeBase", dir, "merge-base", a, b)
}

// RevParse resolves rev to a commit hash.
func (s *GitService) RevParse(ctx context.Context, dir, rev string) (string, error) {
	return s.run(ctx, "git.RevParse", dir, "rev-parse", "--verify", rev+"^{commit}")
}

// CommitsBetween lists commits reachable from head but not from base, newest first.
func (s *GitService) CommitsBetween(ctx context.Context, dir, base, head string) ([]Commit, error) {
	out, err := s.run(ctx, "git.CommitsBetween", dir, "log", "--format=%H %s", base+".."+head)
	if err != nil {
		return nil, err
	}
	var commits []Commit
	for _, l := range lines(out) {
		hash, subject, _ := strings.Cut(l, " ")
		commits = append(commits, Commit{Hash: hash, Subject: subject})
	}
	return commits, nil
}

// FetchBranch fetches branch from remote into a local branch of the same
// name. Used when a pull request's head has never been checked out here.
func (s *GitService) FetchBranch(ctx context.Context, repo, remote, branch string) error {
	logger.WithComponent("git").Info("fetching branch", "remote", remote, "branch", branch)
	_, err := s.run(ctx, "git.FetchBranch", repo, "fetch", remote, branch+":"+branch)
	return err
}

// Rebase rebases the branch checked out in dir onto upstream.
func (s *GitService) Rebase(ctx context.Context, dir, upstream string) error {
	logger.WithComponent("git").Info("rebasing", "dir", dir, "onto", upstream)
	_, stderr, err := s.executor.Run(ctx, dir, "git", "rebase", upstream)
	if err != nil {
		return errs.Execution("git.Rebase", errs.RebaseFailed, err, stderr, "rebase onto %s failed", upstream)
	}
	return nil
}

// AbortRebase aborts an in-progress rebase in dir.
func (s *GitService) AbortRebase(ctx context.Context, dir string) error {
	_, err := s.run(ctx, "git.AbortRebase", dir, "rebase", "--abort")
	return err
}

// MergeFastForward fast-forwards the branch checked out in dir to branch.
// git's own message is kept when the merge is refused.
func (s *GitService) MergeFastForward(ctx context.Context, dir, branch string) error {
	logger.WithComponent("git").Info("fast-forward merging", "dir", dir, "branch", branch)
	stdout, stderr, err := s.executor.Run(ctx, dir, "git", "merge", "--ff-only", branch)
	if err != nil {
		detail := stderr
		if len(strings.TrimSpace(string(detail))) == 0 {
			detail = stdout
		}
		return errs.Execution("git.MergeFastForward", errs.MergeFailed, err, detail,
			"fast-forward merge of %s failed", branch)
	}
	return nil
}

// DeleteBranch deletes branch from repo. Protected names are refused before
// any command runs. Without Force a safe delete is used and an unmerged
// branch is reported as BranchUnmerged.
func (s *GitService) DeleteBranch(ctx context.Context, repo, branch string, opts DeleteOptions) error {
	const op = "git.DeleteBranch"
	if err := safety.CheckBranchDeletable(op, branch, opts.ProtectedBranches); err != nil {
		return err
	}

	flag := "-d"
	if opts.Force {
		flag = "-D"
	}
	logger.WithComponent("git").Info("deleting branch", "branch", branch, "force", opts.Force)

	_, stderr, err := s.executor.Run(ctx, repo, "git", "branch", flag, branch)
	if err == nil {
		return nil
	}
	if !opts.Force && strings.Contains(string(stderr), "not fully merged") {
		e := errs.Execution(op, errs.BranchUnmerged, err, nil,
			"branch %s has commits that are not merged", branch)
		return e.WithRemediation(fmt.Sprintf("git branch -D %s", branch), "or re-run with --force")
	}
	return errs.Execution(op, errs.CommandFailed, err, stderr, "git branch %s %s failed", flag, branch)
}

// IsBranchUnmerged reports whether err is DeleteBranch's unmerged rejection.
func IsBranchUnmerged(err error) bool {
	var e *errs.Error
	return errors.As(err, &e) && e.Code == errs.BranchUnmerged
}
