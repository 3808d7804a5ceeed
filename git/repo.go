package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"github.com/zhubert/hatchery/errs"
	"github.com/zhubert/hatchery/logger"
)

// RepoInfo describes the checkout containing a directory.
type RepoInfo struct {
	Root   string // top-level directory of the checkout
	Branch string // "" when HEAD is detached
	Linked bool   // a linked worktree rather than the primary checkout
}

// DirName returns the checkout's directory name.
func (r RepoInfo) DirName() string {
	return filepath.Base(r.Root)
}

// ErrNotInRepository is returned by DetectRepo outside any git checkout.
var ErrNotInRepository = errors.New("not inside a git repository")

// DetectRepo inspects the checkout containing dir without modifying it.
// Primary checkouts are read with go-git; linked worktrees, whose .git is a
// gitdir pointer go-git only partly understands, are asked of the git binary.
func (s *GitService) DetectRepo(ctx context.Context, dir string) (RepoInfo, error) {
	log := logger.WithComponent("git")

	top, dotGit, err := findDotGit(dir)
	if err != nil {
		return RepoInfo{}, err
	}
	if info, err := os.Stat(dotGit); err == nil && !info.IsDir() {
		return s.detectWithBinary(ctx, top)
	}

	repo, err := gogit.PlainOpenWithOptions(top, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		log.Debug("go-git open failed, using git binary", "dir", top, "error", err)
		return s.detectWithBinary(ctx, top)
	}
	info := RepoInfo{Root: top}
	head, err := repo.Head()
	if err != nil {
		// An unborn branch has no HEAD commit yet; the binary still knows its name.
		log.Debug("go-git head failed", "dir", top, "error", err)
		return s.detectWithBinary(ctx, top)
	}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info, nil
}

func (s *GitService) detectWithBinary(ctx context.Context, dir string) (RepoInfo, error) {
	root, err := s.RepoRoot(ctx, dir)
	if err != nil {
		return RepoInfo{}, err
	}
	branch, err := s.CurrentBranch(ctx, root)
	if err != nil {
		return RepoInfo{}, err
	}
	return RepoInfo{Root: root, Branch: branch, Linked: isLinkedWorktreeDir(root)}, nil
}

// findDotGit walks up from dir to the first directory holding a .git entry.
func findDotGit(dir string) (top, dotGit string, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	for cur := abs; ; {
		candidate := filepath.Join(cur, ".git")
		if _, err := os.Lstat(candidate); err == nil {
			return cur, candidate, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", "", ErrNotInRepository
		}
		cur = parent
	}
}

// isLinkedWorktreeDir reports whether dir's .git is a gitdir pointer file.
func isLinkedWorktreeDir(dir string) bool {
	dotGit := filepath.Join(dir, ".git")
	info, err := os.Stat(dotGit)
	if err != nil || info.IsDir() {
		return false
	}
	data, err := os.ReadFile(dotGit)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(string(data)), "gitdir:")
}

// RepoRoot returns the top-level directory of the checkout containing dir.
func (s *GitService) RepoRoot(ctx context.Context, dir string) (string, error) {
	return s.run(ctx, "git.RepoRoot", dir, "rev-parse", "--show-toplevel")
}

// PrimaryWorktreePath returns the path of the repository's main checkout.
func (s *GitService) PrimaryWorktreePath(ctx context.Context, repo string) (string, error) {
	worktrees, err := s.ListWorktrees(ctx, repo)
	if err != nil {
		return "", err
	}
	for _, w := range worktrees {
		if w.Primary {
			return w.Path, nil
		}
	}
	return "", errs.NotFound("git.PrimaryWorktreePath", errs.WorktreeNotFound, "no primary worktree listed for %s", repo)
}
