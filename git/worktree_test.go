package git

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zhubert/hatchery/errs"
	pexec "github.com/zhubert/hatchery/exec"
)

const samplePorcelain = `worktree /repos/project
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /repos/wt/feat-issue-44-login
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feat/issue-44-login

worktree /repos/wt/feat-issue-440-other
HEAD 3333333333333333333333333333333333333333
branch refs/heads/feat/issue-440-other

worktree /repos/project_pr_45
HEAD 4444444444444444444444444444444444444444
detached

worktree /repos/wt/locked one
HEAD 5555555555555555555555555555555555555555
branch refs/heads/spike
locked reason here
prunable gitdir file points to non-existent location

`

func mockWithWorktrees(output string) *pexec.MockExecutor {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"worktree", "list", "--porcelain"}, pexec.MockResponse{
		Stdout: []byte(output),
	})
	return mock
}

func TestParseWorktreeList(t *testing.T) {
	wts := ParseWorktreeList(samplePorcelain)
	if len(wts) != 5 {
		t.Fatalf("expected 5 worktrees, got %d", len(wts))
	}

	if !wts[0].Primary || wts[0].Branch != "main" || wts[0].Path != "/repos/project" {
		t.Errorf("unexpected primary: %+v", wts[0])
	}
	for _, w := range wts[1:] {
		if w.Primary {
			t.Errorf("only the first record is primary, got %+v", w)
		}
	}
	if wts[1].Branch != "feat/issue-44-login" || wts[1].Commit != "2222222222222222222222222222222222222222" {
		t.Errorf("unexpected record: %+v", wts[1])
	}
	if !wts[3].Detached || wts[3].Branch != "" {
		t.Errorf("expected detached worktree, got %+v", wts[3])
	}
	if wts[4].Path != "/repos/wt/locked one" || !wts[4].Locked || !wts[4].Prunable {
		t.Errorf("expected locked prunable worktree with spaced path, got %+v", wts[4])
	}
}

func TestParseWorktreeList_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		output string
		paths  []string
	}{
		{"empty", "", nil},
		{"only blank lines", "\n\n\n", nil},
		{"record without path", "worktree /a\nbranch refs/heads/main\n\nHEAD abc\nbranch refs/heads/x\n\nworktree /c\nbranch refs/heads/c\n", []string{"/a", "/c"}},
		{"empty path", "worktree /a\n\nworktree \nHEAD abc\n", []string{"/a"}},
		{"crlf and no trailing newline", "worktree /a\r\nbranch refs/heads/main\r\n\r\nworktree /b\r\nbranch refs/heads/b", []string{"/a", "/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wts := ParseWorktreeList(tt.output)
			if len(wts) != len(tt.paths) {
				t.Fatalf("expected %d worktrees, got %d: %+v", len(tt.paths), len(wts), wts)
			}
			for i, p := range tt.paths {
				if wts[i].Path != p {
					t.Errorf("worktree %d path = %q, want %q", i, wts[i].Path, p)
				}
			}
		})
	}
}

func TestParseWorktreeList_MalformedFirstRecordIsNotPromoted(t *testing.T) {
	wts := ParseWorktreeList("HEAD abc\n\nworktree /linked\nbranch refs/heads/x\n")
	if len(wts) != 1 || wts[0].Primary {
		t.Errorf("a linked worktree must not become primary: %+v", wts)
	}
}

func TestMatchesIssue(t *testing.T) {
	tests := []struct {
		branch string
		n      int
		want   bool
	}{
		{"feat/issue-44-x", 44, true},
		{"feat/issue-440-x", 44, false},
		{"feat/issue-440-x", 440, true},
		{"issue-44", 44, true},
		{"tissue-44", 44, false},
		{"fix_issue-44", 44, true},
		{"fix-issue-44-more", 44, true},
		{"Feat/ISSUE-44", 44, true},
		{"issue-44x", 44, false},
		{"issue-4", 44, false},
		{"main", 44, false},
		{"issue-0", 0, false},
	}

	for _, tt := range tests {
		if got := MatchesIssue(tt.branch, tt.n); got != tt.want {
			t.Errorf("MatchesIssue(%q, %d) = %v, want %v", tt.branch, tt.n, got, tt.want)
		}
	}
}

func TestExtractNumbers(t *testing.T) {
	if n, ok := ExtractIssueNumber("feat/issue-87-login"); !ok || n != 87 {
		t.Errorf("ExtractIssueNumber = %d, %v", n, ok)
	}
	if _, ok := ExtractIssueNumber("tissue-87"); ok {
		t.Error("tissue-87 should not yield an issue number")
	}
	if n, ok := ExtractPRNumber("project_pr_45"); !ok || n != 45 {
		t.Errorf("ExtractPRNumber = %d, %v", n, ok)
	}
	if _, ok := ExtractPRNumber("project_pr_45_old"); ok {
		t.Error("suffix must be at the end of the name")
	}
}

func TestFindWorktreeByIssue(t *testing.T) {
	svc := NewGitServiceWithExecutor(mockWithWorktrees(samplePorcelain))

	wt, err := svc.FindWorktreeByIssue(ctx, "/repos/project", 44)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wt == nil || wt.Branch != "feat/issue-44-login" {
		t.Errorf("expected issue-44 worktree, got %+v", wt)
	}

	wt, err = svc.FindWorktreeByIssue(ctx, "/repos/project", 4)
	if err != nil || wt != nil {
		t.Errorf("expected no match for issue 4, got %+v, %v", wt, err)
	}
}

func TestFindWorktreeByPR(t *testing.T) {
	svc := NewGitServiceWithExecutor(mockWithWorktrees(samplePorcelain))

	wt, err := svc.FindWorktreeByPR(ctx, "/repos/project", 45, "spike")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wt == nil || wt.Branch != "spike" {
		t.Errorf("branch hint should win, got %+v", wt)
	}

	wt, err = svc.FindWorktreeByPR(ctx, "/repos/project", 45, "gone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wt == nil || wt.Path != "/repos/project_pr_45" {
		t.Errorf("expected dir-suffix fallback, got %+v", wt)
	}

	wt, _ = svc.FindWorktreeByPR(ctx, "/repos/project", 5, "")
	if wt != nil {
		t.Errorf("_pr_5 must not match _pr_45, got %+v", wt)
	}
}

func TestFindWorktreeByPath(t *testing.T) {
	svc := NewGitServiceWithExecutor(mockWithWorktrees(samplePorcelain))

	wt, err := svc.FindWorktreeByPath(ctx, "/repos/project", "/repos/wt/feat-issue-44-login/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wt == nil || wt.Branch != "feat/issue-44-login" {
		t.Errorf("expected the issue-44 worktree, got %+v", wt)
	}

	wt, err = svc.FindWorktreeByPath(ctx, "/repos/project", "/repos/wt/unknown")
	if err != nil || wt != nil {
		t.Errorf("expected no match, got %+v, %v", wt, err)
	}
}

func TestFindWorktree_ListError(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"worktree", "list"}, pexec.MockResponse{
		Stderr: []byte("fatal: not a git repository"),
		Err:    os.ErrNotExist,
	})
	svc := NewGitServiceWithExecutor(mock)

	_, err := svc.FindWorktreeByBranch(ctx, "/nowhere", "main")
	if errs.KindOf(err) != errs.KindExecution {
		t.Fatalf("expected execution error, got %v", err)
	}
}

func TestSanitizeBranchName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"feature/issue-44-Login", "feature-issue-44-login"},
		{"Fix: the  BUG!!", "fixthebug"},
		{"Fix - the BUG", "fix-thebug"},
		{"--leading/and/trailing--", "leading-and-trailing"},
		{"a//b", "a-b"},
		{"under_score.dot", "underscoredot"},
		{"", ""},
	}

	for _, tt := range tests {
		got := SanitizeBranchName(tt.in)
		if got != tt.want {
			t.Errorf("SanitizeBranchName(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if SanitizeBranchName(got) != got {
			t.Errorf("SanitizeBranchName not idempotent for %q", tt.in)
		}
	}
}

func TestWorktreeDirName(t *testing.T) {
	if got := WorktreeDirName("project", "whatever", 45); got != "project_pr_45" {
		t.Errorf("PR dir = %q", got)
	}
	if got := WorktreeDirName("project", "feat/issue-44", 0); got != "feat-issue-44" {
		t.Errorf("branch dir = %q", got)
	}
}

func TestValidateBranchName(t *testing.T) {
	valid := []string{"main", "feat/issue-44", "release-1.2", "a_b"}
	for _, b := range valid {
		if err := ValidateBranchName(b); err != nil {
			t.Errorf("ValidateBranchName(%q) = %v", b, err)
		}
	}
	invalid := []string{"", "-x", "a..b", "x.lock", "has space", "a~b"}
	for _, b := range invalid {
		if err := ValidateBranchName(b); errs.CodeOf(err) != errs.InvalidBranchName {
			t.Errorf("ValidateBranchName(%q) = %v, want InvalidBranchName", b, err)
		}
	}
}

func TestRemoveWorktree_RefusesPrimaryEvenWithForce(t *testing.T) {
	mock := mockWithWorktrees(samplePorcelain)
	svc := NewGitServiceWithExecutor(mock)

	err := svc.RemoveWorktree(ctx, "/repos/project", "/repos/project", RemoveOptions{Force: true, RemoveDirectory: true})
	if errs.CodeOf(err) != errs.PrimaryWorktree {
		t.Fatalf("expected PrimaryWorktree, got %v", err)
	}
	if n := len(mock.CallsWithPrefix("git", "worktree", "remove")); n != 0 {
		t.Errorf("expected no worktree remove calls, got %d", n)
	}
}

func TestRemoveWorktree_DirtyWithoutForce(t *testing.T) {
	mock := mockWithWorktrees(samplePorcelain)
	mock.AddPrefixMatch("git", []string{"status", "--porcelain"}, pexec.MockResponse{
		Stdout: []byte(" M src/app.go\n"),
	})
	svc := NewGitServiceWithExecutor(mock)

	err := svc.RemoveWorktree(ctx, "/repos/project", "/repos/wt/feat-issue-44-login", RemoveOptions{})
	if errs.CodeOf(err) != errs.UncommittedChanges {
		t.Fatalf("expected UncommittedChanges, got %v", err)
	}
	if n := len(mock.CallsWithPrefix("git", "worktree", "remove")); n != 0 {
		t.Errorf("expected no worktree remove calls, got %d", n)
	}
}

func TestRemoveWorktree_ProtectedBranchCheckedFirst(t *testing.T) {
	mock := mockWithWorktrees("worktree /repos/project\nbranch refs/heads/develop\n\nworktree /repos/wt/main-copy\nbranch refs/heads/main\n")
	svc := NewGitServiceWithExecutor(mock)

	err := svc.RemoveWorktree(ctx, "/repos/project", "/repos/wt/main-copy", RemoveOptions{
		Force:             true,
		RemoveBranch:      true,
		ProtectedBranches: []string{"main"},
	})
	if errs.CodeOf(err) != errs.ProtectedBranch {
		t.Fatalf("expected ProtectedBranch, got %v", err)
	}
	if n := len(mock.CallsWithPrefix("git", "worktree", "remove")); n != 0 {
		t.Errorf("worktree must not be removed when branch deletion is refused")
	}
}

func TestRemoveWorktree_RunsFromPrimaryAndDeletesBranch(t *testing.T) {
	mock := mockWithWorktrees(samplePorcelain)
	svc := NewGitServiceWithExecutor(mock)

	err := svc.RemoveWorktree(ctx, "/repos/project", "/repos/wt/feat-issue-44-login", RemoveOptions{
		Force:        true,
		RemoveBranch: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	removes := mock.CallsWithPrefix("git", "worktree", "remove", "--force")
	if len(removes) != 1 || removes[0].Dir != "/repos/project" {
		t.Errorf("expected one forced remove from the primary worktree, got %+v", removes)
	}
	deletes := mock.CallsWithPrefix("git", "branch", "-D", "feat/issue-44-login")
	if len(deletes) != 1 || deletes[0].Dir != "/repos/project" {
		t.Errorf("expected forced branch delete from primary, got %+v", deletes)
	}
	if n := len(mock.CallsWithPrefix("git", "status")); n != 0 {
		t.Errorf("force skips the status check, got %d calls", n)
	}
}

func TestRemoveWorktree_NotRegistered(t *testing.T) {
	svc := NewGitServiceWithExecutor(mockWithWorktrees(samplePorcelain))
	err := svc.RemoveWorktree(ctx, "/repos/project", "/repos/elsewhere", RemoveOptions{Force: true})
	if !errs.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCreateWorktree_PathExists(t *testing.T) {
	existing := t.TempDir()
	mock := pexec.NewMockExecutor(nil)
	svc := NewGitServiceWithExecutor(mock)

	_, err := svc.CreateWorktree(ctx, "/repos/project", "feat/x", existing, CreateOptions{CreateBranch: true})
	if errs.CodeOf(err) != errs.PathExists {
		t.Fatalf("expected PathExists, got %v", err)
	}
	if len(mock.GetCalls()) != 0 {
		t.Errorf("expected no git calls, got %+v", mock.GetCalls())
	}
}

func TestCreateWorktree_Args(t *testing.T) {
	base := t.TempDir()
	mock := pexec.NewMockExecutor(nil)
	svc := NewGitServiceWithExecutor(mock)

	path, err := svc.CreateWorktree(ctx, "/repos/project", "feat/x", filepath.Join(base, "feat-x"), CreateOptions{
		CreateBranch: true,
		BaseBranch:   "main",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := pexec.MockCall{Dir: "/repos/project", Name: "git", Args: []string{"worktree", "add", "-b", "feat/x", path, "main"}}
	calls := mock.GetCalls()
	if len(calls) != 1 || !calls[0].HasPrefix(want.Name, want.Args...) || calls[0].Dir != want.Dir {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestWorktreeLifecycle_RealRepo(t *testing.T) {
	repo := createTestRepo(t)
	svc := NewGitService()
	wtPath := filepath.Join(filepath.Dir(repo), "worktrees", "feat-issue-7")

	got, err := svc.CreateWorktree(ctx, repo, "feat/issue-7", wtPath, CreateOptions{CreateBranch: true, BaseBranch: "main"})
	if err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}
	if got != wtPath {
		t.Errorf("CreateWorktree returned %q, want %q", got, wtPath)
	}

	wts, err := svc.ListWorktrees(ctx, repo)
	if err != nil {
		t.Fatalf("ListWorktrees: %v", err)
	}
	if len(wts) != 2 || !wts[0].Primary || wts[0].Branch != "main" {
		t.Fatalf("unexpected worktrees: %+v", wts)
	}

	found, err := svc.FindWorktreeByIssue(ctx, repo, 7)
	if err != nil || found == nil || !SamePath(found.Path, wtPath) {
		t.Fatalf("FindWorktreeByIssue = %+v, %v", found, err)
	}

	if err := os.WriteFile(filepath.Join(wtPath, "dirty.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := svc.RemoveWorktree(ctx, repo, wtPath, RemoveOptions{}); errs.CodeOf(err) != errs.UncommittedChanges {
		t.Fatalf("expected UncommittedChanges, got %v", err)
	}

	err = svc.RemoveWorktree(ctx, repo, wtPath, RemoveOptions{Force: true, RemoveDirectory: true, RemoveBranch: true})
	if err != nil {
		t.Fatalf("RemoveWorktree: %v", err)
	}
	if _, err := os.Stat(wtPath); !os.IsNotExist(err) {
		t.Error("worktree directory should be gone")
	}
	if svc.BranchExists(ctx, repo, "feat/issue-7") {
		t.Error("branch should be deleted")
	}
}
