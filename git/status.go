package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhubert/hatchery/errs"
	"github.com/zhubert/hatchery/logger"
)

// ChangedFiles returns the paths reported by `git status --porcelain`.
func (s *GitService) ChangedFiles(ctx context.Context, worktreePath string) ([]string, error) {
	stdout, stderr, err := s.executor.Run(ctx, worktreePath, "git", "status", "--porcelain")
	if err != nil {
		return nil, errs.Execution("git.ChangedFiles", errs.CommandFailed, err, stderr, "git status failed in %s", worktreePath)
	}
	// Leading space is significant in porcelain format, so only trim the end.
	var files []string
	for _, line := range strings.Split(strings.TrimRight(string(stdout), "\n\r\t "), "\n") {
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files, nil
}

// HasUncommittedChanges reports whether the worktree has staged, unstaged or
// untracked changes.
func (s *GitService) HasUncommittedChanges(ctx context.Context, worktreePath string) (bool, error) {
	files, err := s.ChangedFiles(ctx, worktreePath)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// GetConflictedFiles returns files with unresolved merge conflicts.
func (s *GitService) GetConflictedFiles(ctx context.Context, worktreePath string) ([]string, error) {
	out, err := s.run(ctx, "git.GetConflictedFiles", worktreePath, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// IsRebaseInProgress reports whether a rebase is stopped in worktreePath.
// Linked worktrees keep rebase state in their own git dir, so the location is
// asked of git rather than assumed.
func (s *GitService) IsRebaseInProgress(ctx context.Context, worktreePath string) bool {
	log := logger.WithComponent("git")
	for _, name := range []string{"rebase-merge", "rebase-apply"} {
		p, err := s.run(ctx, "git.IsRebaseInProgress", worktreePath, "rev-parse", "--git-path", name)
		if err != nil {
			log.Debug("failed to resolve git path", "name", name, "error", err)
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(worktreePath, p)
		}
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
