// Package git wraps the git binary for worktree lifecycle and integration.
//
// GitService is stateless: every query runs git afresh and parses its
// porcelain output, so the repository is always the source of truth.
//
//   - service.go: GitService and the command wrapper
//   - worktree.go: worktree listing, lookup, create and remove
//   - branch.go: branch refs, rebase and fast-forward merge primitives
//   - status.go: uncommitted changes, conflicts, rebase state
//   - repo.go: repository detection through go-git
package git
