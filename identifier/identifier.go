// Package identifier turns what the operator typed (an issue number, a pull
// request number or a branch name) plus where they are standing into a single
// worktree lookup strategy.
package identifier

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zhubert/hatchery/errs"
	"github.com/zhubert/hatchery/git"
)

// Kind is the lookup strategy an identifier selects.
type Kind string

const (
	Issue  Kind = "issue"
	PR     Kind = "pr"
	Branch Kind = "branch"
)

// Parsed is an immutable, resolved identifier. Number is set for Issue and
// PR; Branch is set for Branch. Raw keeps the original input for messages.
type Parsed struct {
	Kind   Kind
	Number int
	Branch string
	Raw    string
}

// NewIssue returns an issue identifier.
func NewIssue(n int, raw string) Parsed { return Parsed{Kind: Issue, Number: n, Raw: raw} }

// NewPR returns a pull request identifier.
func NewPR(n int, raw string) Parsed { return Parsed{Kind: PR, Number: n, Raw: raw} }

// NewBranch returns a branch identifier.
func NewBranch(name, raw string) Parsed { return Parsed{Kind: Branch, Branch: name, Raw: raw} }

// HasNumber reports whether the identifier carries an issue or PR number.
func (p Parsed) HasNumber() bool {
	return (p.Kind == Issue || p.Kind == PR) && p.Number > 0
}

// Suffix is the key used for per-workspace artifacts such as generated
// executables: the number for issues and PRs, the sanitized branch otherwise.
func (p Parsed) Suffix() string {
	if p.HasNumber() {
		return strconv.Itoa(p.Number)
	}
	return git.SanitizeBranchName(p.Branch)
}

func (p Parsed) String() string {
	switch p.Kind {
	case Issue:
		return fmt.Sprintf("issue #%d", p.Number)
	case PR:
		return fmt.Sprintf("PR #%d", p.Number)
	default:
		return fmt.Sprintf("branch %s", p.Branch)
	}
}

// Resolve picks an identifier from the current context, first match wins:
//  1. dirName ends in _pr_N: PR N
//  2. dirName carries issue-N: issue N
//  3. branchHint carries issue-N: issue N
//  4. otherwise a branch identifier from raw verbatim, or branchHint when raw
//     is empty
//
// Directory patterns come first so a renamed PR workspace still resolves to
// its PR rather than to whatever issue its branch mentions.
func Resolve(raw, dirName, branchHint string) Parsed {
	if n, ok := git.ExtractPRNumber(dirName); ok {
		return NewPR(n, raw)
	}
	if n, ok := git.ExtractIssueNumber(dirName); ok {
		return NewIssue(n, raw)
	}
	if n, ok := git.ExtractIssueNumber(branchHint); ok {
		return NewIssue(n, raw)
	}
	name := raw
	if name == "" {
		name = branchHint
	}
	return NewBranch(name, raw)
}

var (
	issueToken = regexp.MustCompile(`(?i)^(?:#|issue[-/#]?)?(\d+)$`)
	prToken    = regexp.MustCompile(`(?i)^pr[-/#]?(\d+)$`)
)

// Parse reads an explicit token: "44", "#44", "issue-44" and "issue/44" are
// issues; "pr-45", "pr/45", "pr#45" and "pr45" are pull requests; anything
// else is a branch name.
func Parse(raw string) (Parsed, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return Parsed{}, errs.Validation("identifier.Parse", errs.InvalidIdentifier,
			"an issue number, PR number or branch name is required")
	}
	if m := prToken.FindStringSubmatch(token); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return NewPR(n, raw), nil
		}
	}
	if m := issueToken.FindStringSubmatch(token); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return NewIssue(n, raw), nil
		}
	}
	return NewBranch(token, raw), nil
}

// Registry is the worktree lookup surface Find needs; *git.GitService satisfies it.
type Registry interface {
	FindWorktreeByBranch(ctx context.Context, repo, branch string) (*git.Worktree, error)
	FindWorktreeByIssue(ctx context.Context, repo string, n int) (*git.Worktree, error)
	FindWorktreeByPR(ctx context.Context, repo string, n int, branchHint string) (*git.Worktree, error)
}

// Find runs exactly the lookup matching p's kind; there is no fuzzy fallback
// across kinds. branchHint is only consulted for PRs. A nil worktree with a
// nil error means nothing matched.
func Find(ctx context.Context, r Registry, repo string, p Parsed, branchHint string) (*git.Worktree, error) {
	switch p.Kind {
	case Issue:
		return r.FindWorktreeByIssue(ctx, repo, p.Number)
	case PR:
		return r.FindWorktreeByPR(ctx, repo, p.Number, branchHint)
	case Branch:
		return r.FindWorktreeByBranch(ctx, repo, p.Branch)
	}
	return nil, fmt.Errorf("identifier: unknown kind %q", p.Kind)
}
