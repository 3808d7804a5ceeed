package issues

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	pexec "github.com/zhubert/hatchery/exec"
	"github.com/zhubert/hatchery/git"
	"github.com/zhubert/hatchery/logger"
)

// GitHubProvider implements Provider with the gh CLI.
type GitHubProvider struct {
	executor pexec.CommandExecutor
}

// NewGitHubProvider creates a GitHubProvider.
func NewGitHubProvider(executor pexec.CommandExecutor) *GitHubProvider {
	return &GitHubProvider{executor: executor}
}

func (p *GitHubProvider) Name() string { return "GitHub" }

// IsAvailable reports whether gh is installed and logged in.
func (p *GitHubProvider) IsAvailable(ctx context.Context) bool {
	_, _, err := p.executor.Run(ctx, "", "gh", "auth", "status")
	return err == nil
}

type ghItem struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	State       string `json:"state"`
	HeadRefName string `json:"headRefName"`
}

func (p *GitHubProvider) view(ctx context.Context, repoPath, kind string, number int, fields string) (Issue, error) {
	out, err := p.executor.Output(ctx, repoPath, "gh", kind, "view", strconv.Itoa(number), "--json", fields)
	if err != nil {
		return Issue{}, fmt.Errorf("gh %s view %d failed: %w", kind, number, err)
	}
	var item ghItem
	if err := json.Unmarshal(out, &item); err != nil {
		return Issue{}, fmt.Errorf("failed to parse gh %s view output: %w", kind, err)
	}
	return Issue{
		Number:     item.Number,
		Title:      item.Title,
		URL:        item.URL,
		State:      item.State,
		HeadBranch: item.HeadRefName,
	}, nil
}

// Issue fetches issue number.
func (p *GitHubProvider) Issue(ctx context.Context, repoPath string, number int) (Issue, error) {
	return p.view(ctx, repoPath, "issue", number, "number,title,url,state")
}

// PullRequest fetches pull request number including its head branch.
func (p *GitHubProvider) PullRequest(ctx context.Context, repoPath string, number int) (Issue, error) {
	return p.view(ctx, repoPath, "pr", number, "number,title,url,state,headRefName")
}

// maxSlugLen keeps generated branch names readable.
const maxSlugLen = 40

// IssueBranchName returns issue-{n}, followed by a slug of the title when
// there is one: "issue-44-fix-login-redirect".
func IssueBranchName(issue Issue) string {
	name := "issue-" + strconv.Itoa(issue.Number)
	slug := git.SanitizeBranchName(strings.ReplaceAll(issue.Title, " ", "-"))
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return name
	}
	return name + "-" + slug
}

// BranchForIssue asks p for the issue title and falls back to issue-{n}
// when the provider is missing or fails.
func BranchForIssue(ctx context.Context, p Provider, repoPath string, number int) string {
	if p != nil {
		issue, err := p.Issue(ctx, repoPath, number)
		if err == nil {
			return IssueBranchName(issue)
		}
		logger.WithComponent("issues").Debug("issue lookup failed", "number", number, "error", err)
	}
	return IssueBranchName(Issue{Number: number})
}

// HeadBranchForPR returns the pull request's head branch, or "" when it
// cannot be looked up.
func HeadBranchForPR(ctx context.Context, p Provider, repoPath string, number int) string {
	if p == nil {
		return ""
	}
	pr, err := p.PullRequest(ctx, repoPath, number)
	if err != nil {
		logger.WithComponent("issues").Debug("pull request lookup failed", "number", number, "error", err)
		return ""
	}
	return pr.HeadBranch
}

var _ Provider = (*GitHubProvider)(nil)
