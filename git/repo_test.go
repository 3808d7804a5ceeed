package git

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectRepo_Primary(t *testing.T) {
	repo := createTestRepo(t)
	svc := NewGitService()

	sub := filepath.Join(repo, "nested", "dir")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	info, err := svc.DetectRepo(ctx, sub)
	if err != nil {
		t.Fatalf("DetectRepo: %v", err)
	}
	if info.Root != repo || info.Branch != "main" || info.Linked {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.DirName() != "project" {
		t.Errorf("DirName = %q", info.DirName())
	}
}

func TestDetectRepo_LinkedWorktree(t *testing.T) {
	repo := createTestRepo(t)
	svc := NewGitService()
	wt := filepath.Join(filepath.Dir(repo), "project_pr_45")
	gitCmd(t, repo, "worktree", "add", "-b", "pr-45-head", wt)

	info, err := svc.DetectRepo(ctx, wt)
	if err != nil {
		t.Fatalf("DetectRepo: %v", err)
	}
	if !info.Linked || info.Branch != "pr-45-head" || info.DirName() != "project_pr_45" {
		t.Errorf("unexpected info: %+v", info)
	}

	primary, err := svc.PrimaryWorktreePath(ctx, wt)
	if err != nil {
		t.Fatalf("PrimaryWorktreePath: %v", err)
	}
	if !SamePath(primary, repo) {
		t.Errorf("PrimaryWorktreePath = %q, want %q", primary, repo)
	}
}

func TestDetectRepo_Detached(t *testing.T) {
	repo := createTestRepo(t)
	gitCmd(t, repo, "checkout", "--detach")

	info, err := NewGitService().DetectRepo(ctx, repo)
	if err != nil {
		t.Fatalf("DetectRepo: %v", err)
	}
	if info.Branch != "" {
		t.Errorf("detached HEAD should have no branch, got %q", info.Branch)
	}
}

func TestDetectRepo_NotARepo(t *testing.T) {
	dir := t.TempDir()
	_, err := NewGitService().DetectRepo(ctx, dir)
	if !errors.Is(err, ErrNotInRepository) {
		t.Errorf("expected ErrNotInRepository, got %v", err)
	}
}
