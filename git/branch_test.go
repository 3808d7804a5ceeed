package git

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhubert/hatchery/errs"
	pexec "github.com/zhubert/hatchery/exec"
	"github.com/zhubert/hatchery/safety"
)

func TestDeleteBranch_ProtectedIssuesNoCommands(t *testing.T) {
	protected := safety.ProtectedBranches("trunk", []string{"main", "master", "develop"})

	for _, b := range protected {
		for _, force := range []bool{false, true} {
			mock := pexec.NewMockExecutor(nil)
			svc := NewGitServiceWithExecutor(mock)

			err := svc.DeleteBranch(ctx, "/repo", b, DeleteOptions{Force: force, ProtectedBranches: protected})
			if !errs.IsValidation(err) || errs.CodeOf(err) != errs.ProtectedBranch {
				t.Errorf("DeleteBranch(%q, force=%v) = %v, want ProtectedBranch", b, force, err)
			}
			if calls := mock.GetCalls(); len(calls) != 0 {
				t.Errorf("DeleteBranch(%q) issued commands: %+v", b, calls)
			}
		}
	}
}

func TestDeleteBranch_Flags(t *testing.T) {
	tests := []struct {
		force bool
		flag  string
	}{
		{false, "-d"},
		{true, "-D"},
	}
	for _, tt := range tests {
		mock := pexec.NewMockExecutor(nil)
		svc := NewGitServiceWithExecutor(mock)

		if err := svc.DeleteBranch(ctx, "/repo", "feature", DeleteOptions{Force: tt.force}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := len(mock.CallsWithPrefix("git", "branch", tt.flag, "feature")); n != 1 {
			t.Errorf("force=%v: expected one 'branch %s' call, got %d", tt.force, tt.flag, n)
		}
	}
}

func TestDeleteBranch_UnmergedRewritten(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"branch", "-d"}, pexec.MockResponse{
		Stderr: []byte("error: the branch 'feature' is not fully merged.\nIf you are sure you want to delete it, run 'git branch -D feature'."),
		Err:    errors.New("exit status 1"),
	})
	svc := NewGitServiceWithExecutor(mock)

	err := svc.DeleteBranch(ctx, "/repo", "feature", DeleteOptions{})
	if !IsBranchUnmerged(err) {
		t.Fatalf("expected BranchUnmerged, got %v", err)
	}
	if !strings.Contains(err.Error(), "--force") || !strings.Contains(err.Error(), "git branch -D feature") {
		t.Errorf("message should tell how to override: %v", err)
	}
}

func TestDeleteBranch_OtherErrorsVerbatim(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"branch", "-d"}, pexec.MockResponse{
		Stderr: []byte("error: branch 'ghost' not found."),
		Err:    errors.New("exit status 1"),
	})
	svc := NewGitServiceWithExecutor(mock)

	err := svc.DeleteBranch(ctx, "/repo", "ghost", DeleteOptions{})
	if errs.CodeOf(err) != errs.CommandFailed {
		t.Fatalf("expected CommandFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "branch 'ghost' not found") {
		t.Errorf("git's message should be preserved: %v", err)
	}
}

func TestCommitsBetween(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"log", "--format=%H %s", "main..HEAD"}, pexec.MockResponse{
		Stdout: []byte("aaaaaaaaaa Add login form\nbbbbbbbbbb Fix typo in README\n\n"),
	})
	svc := NewGitServiceWithExecutor(mock)

	commits, err := svc.CommitsBetween(ctx, "/wt", "main", "HEAD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}
	if commits[1].Subject != "Fix typo in README" {
		t.Errorf("unexpected subject %q", commits[1].Subject)
	}
	if commits[0].String() != "aaaaaaa Add login form" {
		t.Errorf("unexpected String(): %q", commits[0].String())
	}
}

func TestMergeFastForward_KeepsGitMessage(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"merge", "--ff-only"}, pexec.MockResponse{
		Stderr: []byte("fatal: Not possible to fast-forward, aborting."),
		Err:    errors.New("exit status 128"),
	})
	svc := NewGitServiceWithExecutor(mock)

	err := svc.MergeFastForward(ctx, "/repo", "feature")
	if errs.CodeOf(err) != errs.MergeFailed {
		t.Fatalf("expected MergeFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Not possible to fast-forward") {
		t.Errorf("expected git's message, got %v", err)
	}
}

func TestBranchPrimitives_RealRepo(t *testing.T) {
	repo := createTestRepo(t)
	svc := NewGitService()

	if !svc.BranchExists(ctx, repo, "main") {
		t.Fatal("main should exist")
	}
	if svc.BranchExists(ctx, repo, "nope") {
		t.Fatal("nope should not exist")
	}

	gitCmd(t, repo, "checkout", "-b", "feature")
	commitFile(t, repo, "feature.txt", "f\n", "Add feature")

	branch, err := svc.CurrentBranch(ctx, repo)
	if err != nil || branch != "feature" {
		t.Fatalf("CurrentBranch = %q, %v", branch, err)
	}

	base, err := svc.MergeBase(ctx, repo, "main", "feature")
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	mainHead, err := svc.RevParse(ctx, repo, "main")
	if err != nil {
		t.Fatalf("RevParse: %v", err)
	}
	if base != mainHead {
		t.Errorf("merge-base %s should equal main %s before main advances", base, mainHead)
	}

	commits, err := svc.CommitsBetween(ctx, repo, "main", "feature")
	if err != nil || len(commits) != 1 || commits[0].Subject != "Add feature" {
		t.Fatalf("CommitsBetween = %+v, %v", commits, err)
	}

	gitCmd(t, repo, "checkout", "main")
	if err := svc.MergeFastForward(ctx, repo, "feature"); err != nil {
		t.Fatalf("MergeFastForward: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo, "feature.txt")); err != nil {
		t.Error("feature.txt should be on main after fast-forward")
	}
	if err := svc.DeleteBranch(ctx, repo, "feature", DeleteOptions{}); err != nil {
		t.Fatalf("safe delete of merged branch: %v", err)
	}
}

func TestDeleteBranch_UnmergedRealRepo(t *testing.T) {
	repo := createTestRepo(t)
	svc := NewGitService()

	gitCmd(t, repo, "checkout", "-b", "wip")
	commitFile(t, repo, "wip.txt", "w\n", "WIP")
	gitCmd(t, repo, "checkout", "main")

	err := svc.DeleteBranch(ctx, repo, "wip", DeleteOptions{})
	if !IsBranchUnmerged(err) {
		t.Fatalf("expected BranchUnmerged, got %v", err)
	}
	if err := svc.DeleteBranch(ctx, repo, "wip", DeleteOptions{Force: true}); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
}

func TestFetchBranch(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	svc := NewGitServiceWithExecutor(mock)

	if err := svc.FetchBranch(ctx, "/repo", "origin", "feature/search"); err != nil {
		t.Fatalf("FetchBranch: %v", err)
	}
	calls := mock.CallsWithPrefix("git", "fetch", "origin", "feature/search:feature/search")
	if len(calls) != 1 || calls[0].Dir != "/repo" {
		t.Errorf("unexpected calls: %+v", mock.GetCalls())
	}
}
