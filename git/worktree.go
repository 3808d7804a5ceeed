package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/zhubert/hatchery/errs"
	"github.com/zhubert/hatchery/logger"
	"github.com/zhubert/hatchery/safety"
)

// Worktree is one entry of `git worktree list --porcelain`.
type Worktree struct {
	Path     string // absolute path
	Branch   string // short branch name, empty when detached
	Commit   string
	Locked   bool
	Primary  bool // the repository's main checkout
	Detached bool
	Bare     bool
	Prunable bool
}

// Name returns the worktree's directory name.
func (w Worktree) Name() string {
	return filepath.Base(w.Path)
}

// CreateOptions controls CreateWorktree.
type CreateOptions struct {
	CreateBranch bool   // create Branch with -b instead of checking out an existing one
	BaseBranch   string // start point for a new branch; empty means HEAD
	Force        bool   // remove a conflicting path first
}

// RemoveOptions controls RemoveWorktree.
type RemoveOptions struct {
	Force             bool
	RemoveDirectory   bool // delete whatever git leaves behind
	RemoveBranch      bool
	ProtectedBranches []string
}

// MaxBranchNameLength bounds user-provided branch names.
const MaxBranchNameLength = 100

var validBranchNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

// ValidateBranchName checks that branch is a name git will accept.
func ValidateBranchName(branch string) error {
	const op = "git.ValidateBranchName"
	switch {
	case branch == "":
		return errs.Validation(op, errs.InvalidBranchName, "branch name is required")
	case len(branch) > MaxBranchNameLength:
		return errs.Validation(op, errs.InvalidBranchName, "branch name too long (max %d characters)", MaxBranchNameLength)
	case strings.HasSuffix(branch, ".lock"):
		return errs.Validation(op, errs.InvalidBranchName, "branch name cannot end with '.lock'")
	case strings.Contains(branch, ".."):
		return errs.Validation(op, errs.InvalidBranchName, "branch name cannot contain '..'")
	case !validBranchNameRegex.MatchString(branch):
		return errs.Validation(op, errs.InvalidBranchName, "branch name %q contains invalid characters (use letters, numbers, /, _, ., -)", branch)
	}
	return nil
}

// ParseWorktreeList parses porcelain worktree output. Records are separated by
// blank lines; the first record is the primary worktree. Records without a
// worktree path are skipped.
func ParseWorktreeList(output string) []Worktree {
	log := logger.WithComponent("git")

	var result []Worktree
	record := 0
	var cur *Worktree
	flush := func() {
		if cur == nil {
			return
		}
		if cur.Path == "" {
			log.Debug("skipping worktree record without path", "record", record)
		} else {
			cur.Primary = record == 0
			result = append(result, *cur)
		}
		record++
		cur = nil
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if cur == nil {
			cur = &Worktree{}
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			cur.Path = strings.TrimSpace(value)
		case "HEAD":
			cur.Commit = strings.TrimSpace(value)
		case "branch":
			cur.Branch = strings.TrimPrefix(strings.TrimSpace(value), "refs/heads/")
		case "detached":
			cur.Detached = true
		case "bare":
			cur.Bare = true
		case "locked":
			cur.Locked = true
		case "prunable":
			cur.Prunable = true
		default:
			log.Debug("ignoring unknown worktree attribute", "line", line)
		}
	}
	flush()
	return result
}

// ListWorktrees returns every worktree registered in repo.
func (s *GitService) ListWorktrees(ctx context.Context, repo string) ([]Worktree, error) {
	out, err := s.run(ctx, "git.ListWorktrees", repo, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeList(out), nil
}

// FindWorktreeByBranch returns the worktree with branch checked out, or nil.
func (s *GitService) FindWorktreeByBranch(ctx context.Context, repo, branch string) (*Worktree, error) {
	return s.findWorktree(ctx, repo, func(w Worktree) bool { return w.Branch == branch })
}

// FindWorktreeByIssue returns the first worktree whose branch carries issue-n, or nil.
func (s *GitService) FindWorktreeByIssue(ctx context.Context, repo string, n int) (*Worktree, error) {
	return s.findWorktree(ctx, repo, func(w Worktree) bool { return MatchesIssue(w.Branch, n) })
}

// FindWorktreeByPR returns the worktree for pull request n, or nil. The
// branch hint is tried first, then a directory named *_pr_{n}.
func (s *GitService) FindWorktreeByPR(ctx context.Context, repo string, n int, branchHint string) (*Worktree, error) {
	worktrees, err := s.ListWorktrees(ctx, repo)
	if err != nil {
		return nil, err
	}
	if branchHint != "" {
		for i := range worktrees {
			if worktrees[i].Branch == branchHint {
				return &worktrees[i], nil
			}
		}
	}
	suffix := PRDirSuffix(n)
	for i := range worktrees {
		if !worktrees[i].Primary && strings.HasSuffix(worktrees[i].Name(), suffix) {
			return &worktrees[i], nil
		}
	}
	return nil, nil
}

// FindWorktreeByPath returns the worktree registered at path, or nil.
func (s *GitService) FindWorktreeByPath(ctx context.Context, repo, path string) (*Worktree, error) {
	return s.findWorktree(ctx, repo, func(w Worktree) bool { return SamePath(w.Path, path) })
}

func (s *GitService) findWorktree(ctx context.Context, repo string, match func(Worktree) bool) (*Worktree, error) {
	worktrees, err := s.ListWorktrees(ctx, repo)
	if err != nil {
		return nil, err
	}
	for i := range worktrees {
		if match(worktrees[i]) {
			return &worktrees[i], nil
		}
	}
	return nil, nil
}

var issueNumberRegex = regexp.MustCompile(`(?i)(?:^|[/_-])issue-(\d+)(?:-|$)`)

// MatchesIssue reports whether name contains issue-{n} on a boundary:
// preceded by start, '/', '-' or '_' and followed by '-' or end.
func MatchesIssue(name string, n int) bool {
	if n <= 0 {
		return false
	}
	re := regexp.MustCompile(`(?i)(?:^|[/_-])issue-` + strconv.Itoa(n) + `(?:-|$)`)
	return re.MatchString(name)
}

// ExtractIssueNumber returns the first boundary-safe issue number in name.
func ExtractIssueNumber(name string) (int, bool) {
	m := issueNumberRegex.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil && n > 0
}

var prDirRegex = regexp.MustCompile(`_pr_(\d+)$`)

// PRDirSuffix is the directory-name suffix used for pull request worktrees.
func PRDirSuffix(n int) string {
	return fmt.Sprintf("_pr_%d", n)
}

// ExtractPRNumber returns N when dirName ends in _pr_N.
func ExtractPRNumber(dirName string) (int, bool) {
	m := prDirRegex.FindStringSubmatch(dirName)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil && n > 0
}

// CreateWorktree adds a worktree for branch at path and returns its absolute path.
func (s *GitService) CreateWorktree(ctx context.Context, repo, branch, path string, opts CreateOptions) (string, error) {
	const op = "git.CreateWorktree"
	log := logger.WithComponent("git")

	if err := ValidateBranchName(branch); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%s: resolve %s: %w", op, path, err)
	}

	if _, err := os.Stat(abs); err == nil {
		if !opts.Force {
			return "", errs.Validation(op, errs.PathExists, "path %s already exists", abs).
				WithRemediation("re-run with --force to replace it", "rm -rf "+abs)
		}
		log.Warn("replacing existing worktree path", "path", abs)
		if _, err := s.run(ctx, op, repo, "worktree", "remove", "--force", abs); err != nil {
			log.Debug("path was not a registered worktree", "path", abs, "error", err)
		}
		if err := os.RemoveAll(abs); err != nil {
			return "", fmt.Errorf("%s: remove %s: %w", op, abs, err)
		}
		if _, err := s.run(ctx, op, repo, "worktree", "prune"); err != nil {
			log.Warn("worktree prune failed (best-effort)", "error", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", fmt.Errorf("%s: create parent of %s: %w", op, abs, err)
	}

	args := []string{"worktree", "add"}
	if opts.CreateBranch {
		args = append(args, "-b", branch, abs)
		if opts.BaseBranch != "" {
			args = append(args, opts.BaseBranch)
		}
	} else {
		args = append(args, abs, branch)
	}

	log.Info("creating git worktree", "branch", branch, "path", abs, "base", opts.BaseBranch)
	if _, err := s.run(ctx, op, repo, args...); err != nil {
		log.Error("failed to create worktree", "branch", branch, "error", err)
		return "", err
	}
	return abs, nil
}

// RemoveWorktree unregisters the worktree at path. The primary worktree is
// always refused, force or not.
func (s *GitService) RemoveWorktree(ctx context.Context, repo, path string, opts RemoveOptions) error {
	const op = "git.RemoveWorktree"
	log := logger.WithComponent("git")

	worktrees, err := s.ListWorktrees(ctx, repo)
	if err != nil {
		return err
	}
	var target, primary *Worktree
	for i := range worktrees {
		if worktrees[i].Primary {
			primary = &worktrees[i]
		}
		if SamePath(worktrees[i].Path, path) {
			target = &worktrees[i]
		}
	}
	if target == nil {
		return errs.NotFound(op, errs.WorktreeNotFound, "no worktree registered at %s", path)
	}
	isPrimary := target.Primary || (primary != nil && SamePath(primary.Path, target.Path))
	if err := safety.CheckNotPrimary(op, target.Path, isPrimary); err != nil {
		return err
	}
	if !opts.Force {
		if err := safety.CheckClean(ctx, s, op, target.Path, errs.UncommittedChanges); err != nil {
			return err
		}
	}
	if opts.RemoveBranch && target.Branch != "" {
		if err := safety.CheckBranchDeletable(op, target.Branch, opts.ProtectedBranches); err != nil {
			return err
		}
	}

	// Run from the primary checkout; the target directory is about to vanish.
	runDir := repo
	if primary != nil {
		runDir = primary.Path
	}

	args := []string{"worktree", "remove"}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, target.Path)

	log.Info("removing worktree", "path", target.Path, "branch", target.Branch, "force", opts.Force)
	if _, err := s.run(ctx, op, runDir, args...); err != nil {
		if !opts.Force || !opts.RemoveDirectory {
			return err
		}
		log.Warn("git worktree remove failed, deleting directory", "path", target.Path, "error", err)
		if rmErr := os.RemoveAll(target.Path); rmErr != nil {
			return fmt.Errorf("%s: remove directory %s: %w", op, target.Path, rmErr)
		}
		if _, err := s.run(ctx, op, runDir, "worktree", "prune"); err != nil {
			log.Warn("worktree prune failed (best-effort)", "error", err)
		}
	}

	if opts.RemoveDirectory {
		if err := os.RemoveAll(target.Path); err != nil {
			return fmt.Errorf("%s: remove leftover directory %s: %w", op, target.Path, err)
		}
	}

	if opts.RemoveBranch && target.Branch != "" {
		return s.DeleteBranch(ctx, runDir, target.Branch, DeleteOptions{
			Force:             opts.Force,
			ProtectedBranches: opts.ProtectedBranches,
		})
	}
	return nil
}

var (
	invalidDirChars = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedDashes  = regexp.MustCompile(`-{2,}`)
)

// SanitizeBranchName turns a branch name into a string safe for directory and
// database branch names: lowercased, '/' replaced with '-', everything outside
// [a-z0-9-] removed, dashes collapsed and trimmed.
func SanitizeBranchName(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "/", "-")
	s = invalidDirChars.ReplaceAllString(s, "")
	s = repeatedDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// WorktreeDirName returns the directory name for a workspace: <repo>_pr_<n>
// for pull requests, otherwise the sanitized branch name.
func WorktreeDirName(repoName, branch string, prNumber int) string {
	if prNumber > 0 {
		return repoName + PRDirSuffix(prNumber)
	}
	return SanitizeBranchName(branch)
}

// SamePath reports whether a and b refer to the same filesystem entry,
// comparing cleaned strings when either cannot be stat'd.
func SamePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	if errA != nil || errB != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}
