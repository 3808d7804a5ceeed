package identifier

import (
	"context"
	"testing"

	"github.com/zhubert/hatchery/errs"
	pexec "github.com/zhubert/hatchery/exec"
	"github.com/zhubert/hatchery/git"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		dirName    string
		branchHint string
		want       Parsed
	}{
		{
			name:       "pr directory beats issue branch",
			raw:        "#87",
			dirName:    "project_pr_45",
			branchHint: "feat/issue-87-login",
			want:       Parsed{Kind: PR, Number: 45, Raw: "#87"},
		},
		{
			name:       "issue directory beats issue branch",
			dirName:    "issue-12-renamed",
			branchHint: "feat/issue-87-login",
			want:       Parsed{Kind: Issue, Number: 12},
		},
		{
			name:       "issue from branch",
			dirName:    "project",
			branchHint: "feat/issue-44-x",
			want:       Parsed{Kind: Issue, Number: 44},
		},
		{
			name:       "issue-440 is not issue 44",
			dirName:    "project",
			branchHint: "feat/issue-440-x",
			want:       Parsed{Kind: Issue, Number: 440},
		},
		{
			name:       "raw branch",
			raw:        "spike/cache",
			dirName:    "project",
			branchHint: "main",
			want:       Parsed{Kind: Branch, Branch: "spike/cache", Raw: "spike/cache"},
		},
		{
			name:       "raw branch kept verbatim",
			raw:        " spike/cache ",
			dirName:    "project",
			branchHint: "main",
			want:       Parsed{Kind: Branch, Branch: " spike/cache ", Raw: " spike/cache "},
		},
		{
			name:       "branch hint when raw empty",
			dirName:    "project",
			branchHint: "spike/cache",
			want:       Parsed{Kind: Branch, Branch: "spike/cache"},
		},
		{
			name:       "tissue is not an issue",
			dirName:    "tissue-44",
			branchHint: "tissue-44",
			want:       Parsed{Kind: Branch, Branch: "tissue-44"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.raw, tt.dirName, tt.branchHint); got != tt.want {
				t.Errorf("Resolve(%q, %q, %q) = %+v, want %+v", tt.raw, tt.dirName, tt.branchHint, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		raw    string
		kind   Kind
		number int
		branch string
	}{
		{"44", Issue, 44, ""},
		{"#44", Issue, 44, ""},
		{"issue-44", Issue, 44, ""},
		{"issue/44", Issue, 44, ""},
		{"ISSUE-44", Issue, 44, ""},
		{"pr-45", PR, 45, ""},
		{"pr/45", PR, 45, ""},
		{"pr#45", PR, 45, ""},
		{"PR45", PR, 45, ""},
		{" 7 ", Issue, 7, ""},
		{"feat/issue-44-x", Branch, 0, "feat/issue-44-x"},
		{"print", Branch, 0, "print"},
		{"0", Branch, 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.kind || got.Number != tt.number || got.Branch != tt.branch || got.Raw != tt.raw {
				t.Errorf("Parse(%q) = %+v", tt.raw, got)
			}
		})
	}

	if _, err := Parse("   "); errs.CodeOf(err) != errs.InvalidIdentifier {
		t.Errorf("expected InvalidIdentifier for blank input, got %v", err)
	}
}

func TestParsed_SuffixAndString(t *testing.T) {
	tests := []struct {
		p      Parsed
		suffix string
		str    string
	}{
		{NewIssue(44, "44"), "44", "issue #44"},
		{NewPR(45, "pr-45"), "45", "PR #45"},
		{NewBranch("Feat/Login", "Feat/Login"), "feat-login", "branch Feat/Login"},
	}
	for _, tt := range tests {
		if got := tt.p.Suffix(); got != tt.suffix {
			t.Errorf("%+v Suffix = %q, want %q", tt.p, got, tt.suffix)
		}
		if got := tt.p.String(); got != tt.str {
			t.Errorf("%+v String = %q, want %q", tt.p, got, tt.str)
		}
	}
}

type recordingRegistry struct {
	calls []string
}

func (r *recordingRegistry) FindWorktreeByBranch(ctx context.Context, repo, branch string) (*git.Worktree, error) {
	r.calls = append(r.calls, "branch:"+branch)
	return nil, nil
}

func (r *recordingRegistry) FindWorktreeByIssue(ctx context.Context, repo string, n int) (*git.Worktree, error) {
	r.calls = append(r.calls, "issue")
	return nil, nil
}

func (r *recordingRegistry) FindWorktreeByPR(ctx context.Context, repo string, n int, hint string) (*git.Worktree, error) {
	r.calls = append(r.calls, "pr:"+hint)
	return nil, nil
}

func TestFind_DispatchesExactlyOneLookup(t *testing.T) {
	tests := []struct {
		p    Parsed
		want string
	}{
		{NewIssue(44, ""), "issue"},
		{NewPR(45, ""), "pr:hint"},
		{NewBranch("feature", ""), "branch:feature"},
	}
	for _, tt := range tests {
		reg := &recordingRegistry{}
		wt, err := Find(context.Background(), reg, "/repo", tt.p, "hint")
		if err != nil || wt != nil {
			t.Errorf("Find(%v) = %+v, %v", tt.p, wt, err)
		}
		if len(reg.calls) != 1 || reg.calls[0] != tt.want {
			t.Errorf("Find(%v) calls = %v, want [%s]", tt.p, reg.calls, tt.want)
		}
	}
}

func TestFind_WithGitService(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"worktree", "list"}, pexec.MockResponse{Stdout: []byte(
		"worktree /repos/project\nbranch refs/heads/main\n\n" +
			"worktree /repos/wt/feat-issue-440\nbranch refs/heads/feat/issue-440\n\n" +
			"worktree /repos/wt/feat-issue-44\nbranch refs/heads/feat/issue-44-login\n",
	)})
	svc := git.NewGitServiceWithExecutor(mock)

	wt, err := Find(context.Background(), svc, "/repos/project", NewIssue(44, "44"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wt == nil || wt.Path != "/repos/wt/feat-issue-44" {
		t.Errorf("expected the issue-44 worktree, got %+v", wt)
	}
}
