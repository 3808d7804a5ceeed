package git

import (
	"context"
	"strings"

	"github.com/zhubert/hatchery/errs"
	pexec "github.com/zhubert/hatchery/exec"
)

// GitService provides git operations with explicit dependency injection.
// Each instance holds its own executor so tests can substitute a mock.
type GitService struct {
	executor pexec.CommandExecutor
}

// NewGitService creates a GitService backed by the real executor.
func NewGitService() *GitService {
	return &GitService{executor: pexec.NewRealExecutor()}
}

// NewGitServiceWithExecutor creates a GitService with a custom executor.
func NewGitServiceWithExecutor(exec pexec.CommandExecutor) *GitService {
	return &GitService{executor: exec}
}

// Executor returns the executor used for git commands.
func (s *GitService) Executor() pexec.CommandExecutor {
	return s.executor
}

// run executes git in dir and returns trimmed stdout. A failure becomes an
// execution error carrying git's stderr.
func (s *GitService) run(ctx context.Context, op, dir string, args ...string) (string, error) {
	stdout, stderr, err := s.executor.Run(ctx, dir, "git", args...)
	if err != nil {
		return "", errs.Execution(op, errs.CommandFailed, err, stderr, "git %s failed", strings.Join(args, " "))
	}
	return strings.TrimSpace(string(stdout)), nil
}

// lines splits command output into non-empty trimmed lines.
func lines(out string) []string {
	var result []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			result = append(result, l)
		}
	}
	return result
}
