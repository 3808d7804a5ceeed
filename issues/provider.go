// Package issues looks up issue and pull request details from the hosting
// forge so workspaces get meaningful branch names.
package issues

import "context"

// Issue is an issue or pull request as far as naming a workspace needs.
type Issue struct {
	Number     int
	Title      string
	URL        string
	HeadBranch string // pull requests only
	State      string
}

// Provider fetches issues and pull requests by number.
type Provider interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Issue(ctx context.Context, repoPath string, number int) (Issue, error)
	PullRequest(ctx context.Context, repoPath string, number int) (Issue, error)
}
