package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zhubert/hatchery/cleanup"
	"github.com/zhubert/hatchery/cli"
	"github.com/zhubert/hatchery/envfile"
	"github.com/zhubert/hatchery/git"
	"github.com/zhubert/hatchery/identifier"
	"github.com/zhubert/hatchery/integrate"
	"github.com/zhubert/hatchery/issues"
	"github.com/zhubert/hatchery/logger"
)

func newRootCommand(args []string) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "hatchery",
		Short:         "Isolated git worktree workspaces per issue, PR or branch",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger.SetDebug(flags.debug)
			path, err := logger.DefaultLogPath()
			if err != nil {
				return err
			}
			return logger.Init(path)
		},
	}
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Write debug output to the log file")
	root.PersistentFlags().StringVar(&flags.repo, "repo", "", "Directory inside the repository (default: current directory)")

	root.AddCommand(
		newCreateCommand(flags),
		newListCommand(flags),
		newRebaseCommand(flags),
		newFinishCommand(flags),
		newCleanupCommand(flags),
		newDoctorCommand(flags),
	)

	if len(args) > 1 {
		root.SetArgs(args[1:])
	}
	return root
}

// workspaceBranch is the branch a new workspace for p gets when none is given.
func workspaceBranch(p identifier.Parsed) string {
	switch p.Kind {
	case identifier.Issue:
		return "issue-" + strconv.Itoa(p.Number)
	case identifier.PR:
		return "pr-" + strconv.Itoa(p.Number)
	}
	return p.Branch
}

func newCreateCommand(flags *globalFlags) *cobra.Command {
	var base, branch string
	var force, withDatabase, noLookup bool
	cmd := &cobra.Command{
		Use:   "create <issue|pr|branch>",
		Short: "Create a workspace worktree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := identifier.Parse(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			return runCreate(ctx, a, id, createOptions{base: base, branch: branch, force: force, database: withDatabase, lookup: !noLookup})
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "Start point for a new branch (default: trunk)")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch name (default: issue-N, pr-N or the identifier)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing directory at the workspace path")
	cmd.Flags().BoolVar(&withDatabase, "database", false, "Create a database branch for the workspace")
	cmd.Flags().BoolVar(&noLookup, "no-lookup", false, "Do not ask GitHub for issue titles or pull request branches")
	return cmd
}

type createOptions struct {
	base     string
	branch   string
	force    bool
	database bool
	lookup   bool
}

// lookupBranch names the branch for a numbered workspace from GitHub: the
// head branch of a pull request, or issue-N-<title> for an issue. It
// returns "" when nothing better than workspaceBranch is known.
func lookupBranch(ctx context.Context, a *app, id identifier.Parsed) string {
	switch id.Kind {
	case identifier.Issue:
		return issues.BranchForIssue(ctx, a.forge(), a.primary, id.Number)
	case identifier.PR:
		head := issues.HeadBranchForPR(ctx, a.forge(), a.primary, id.Number)
		if head != "" && !a.git.BranchExists(ctx, a.primary, head) {
			if err := a.git.FetchBranch(ctx, a.primary, "origin", head); err != nil {
				logger.WithComponent("create").Warn("could not fetch pull request head", "branch", head, "error", err)
				return ""
			}
		}
		return head
	}
	return ""
}

func runCreate(ctx context.Context, a *app, id identifier.Parsed, opts createOptions) error {
	branch := opts.branch
	if branch == "" && opts.lookup {
		branch = lookupBranch(ctx, a, id)
	}
	if branch == "" {
		branch = workspaceBranch(id)
	}
	prNumber := 0
	if id.Kind == identifier.PR {
		prNumber = id.Number
	}
	base := opts.base
	if base == "" {
		base = a.settings.TrunkBranch
	}

	dir := filepath.Join(a.settings.WorktreeDir, git.WorktreeDirName(filepath.Base(a.primary), branch, prNumber))
	exists := a.git.BranchExists(ctx, a.primary, branch)
	path, err := a.git.CreateWorktree(ctx, a.primary, branch, dir, git.CreateOptions{
		CreateBranch: !exists,
		BaseBranch:   base,
		Force:        opts.force,
	})
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Created"), path, secondaryStyle.Render("("+branch+")"))
	if id.HasNumber() {
		fmt.Println(secondaryStyle.Render(fmt.Sprintf("Dev server port: %d", a.settings.Port(id.Number))))
	}

	if !opts.database {
		return nil
	}
	if a.db == nil || !a.db.IsConfigured() {
		return fmt.Errorf("no database provider configured in settings")
	}
	name := a.db.SanitizeBranchName(branch)
	conn, err := a.db.CreateBranch(ctx, name, a.settings.Database.ParentBranch, a.primary)
	if err != nil {
		return err
	}
	envName := ".env.local"
	if len(a.settings.EnvFiles) > 0 {
		envName = a.settings.EnvFiles[0]
	}
	if err := envfile.Write(path, envName, a.settings.Database.EnvVar, conn); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Created"), "database branch", name, secondaryStyle.Render("→ "+envName))
	return nil
}

func newListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			worktrees, err := a.git.ListWorktrees(cmd.Context(), a.primary)
			if err != nil {
				return err
			}
			fmt.Print(renderWorktrees(worktrees, a.settings))
			return nil
		},
	}
}

func newRebaseCommand(flags *globalFlags) *cobra.Command {
	var opts integrate.Options
	var abort bool
	cmd := &cobra.Command{
		Use:   "rebase",
		Short: "Rebase the current workspace onto trunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if abort {
				if err := a.engine().AbortRebase(cmd.Context(), a.repo.Root); err != nil {
					return err
				}
				fmt.Println(successStyle.Render("Aborted"), "rebase in", a.repo.Root)
				return nil
			}
			out, err := a.engine().RebaseOntoTrunk(cmd.Context(), a.repo.Root, opts)
			fmt.Print(renderOutcome(out))
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would be rebased")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Recorded only; preconditions still apply")
	cmd.Flags().BoolVar(&abort, "abort", false, "Abandon a rebase that stopped on conflicts")
	return cmd
}

// resolveWorkspace finds the worktree for raw, or for the current directory
// when raw is empty.
func resolveWorkspace(ctx context.Context, a *app, raw string) (identifier.Parsed, *git.Worktree, error) {
	var id identifier.Parsed
	if raw == "" {
		id = identifier.Resolve("", a.repo.DirName(), a.repo.Branch)
	} else {
		parsed, err := identifier.Parse(raw)
		if err != nil {
			return id, nil, err
		}
		id = parsed
	}
	wt, err := identifier.Find(ctx, a.git, a.primary, id, prBranchHint(ctx, a, id, raw))
	if err != nil {
		return id, nil, err
	}
	if wt == nil && raw == "" {
		// The current checkout is the workspace even when its directory and
		// branch names disagree; address it by branch from here on.
		if wt, err = a.git.FindWorktreeByPath(ctx, a.primary, a.repo.Root); err != nil {
			return id, nil, err
		}
		if wt != nil && wt.Branch != "" {
			id = identifier.NewBranch(wt.Branch, wt.Branch)
		}
	}
	if wt == nil {
		return id, nil, fmt.Errorf("no worktree found for %s", id)
	}
	return id, wt, nil
}

// prBranchHint is the branch a pull request workspace is expected to have
// checked out: the current branch when finishing from inside the workspace,
// otherwise the pull request's head on GitHub.
func prBranchHint(ctx context.Context, a *app, id identifier.Parsed, raw string) string {
	if id.Kind != identifier.PR {
		return ""
	}
	if raw == "" {
		return a.repo.Branch
	}
	return issues.HeadBranchForPR(ctx, a.forge(), a.primary, id.Number)
}

func newFinishCommand(flags *globalFlags) *cobra.Command {
	var dryRun, force, keepDatabase, keepBranch bool
	cmd := &cobra.Command{
		Use:   "finish [issue|pr|branch]",
		Short: "Rebase, fast-forward trunk and clean up a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			id, wt, err := resolveWorkspace(ctx, a, raw)
			if err != nil {
				return err
			}

			out, err := a.engine().Integrate(ctx, integrate.Request{
				WorktreePath: wt.Path,
				Options:      integrate.Options{Force: force, DryRun: dryRun},
			})
			fmt.Print(renderOutcome(out))
			if err != nil {
				return err
			}

			result, err := a.orchestrator().Cleanup(ctx, id, cleanup.Options{
				Force:        force,
				DryRun:       dryRun,
				DeleteBranch: !keepBranch,
				KeepDatabase: keepDatabase,
				BranchHint:   wt.Branch,
			})
			if err != nil {
				return err
			}
			fmt.Print(renderCleanup(result))
			if !result.Success {
				return errNotSuccessful
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would happen without changing anything")
	cmd.Flags().BoolVar(&force, "force", false, "Remove the worktree even with uncommitted changes")
	cmd.Flags().BoolVar(&keepDatabase, "keep-database", false, "Leave the database branch in place")
	cmd.Flags().BoolVar(&keepBranch, "keep-branch", false, "Leave the git branch in place")
	return cmd
}

func newCleanupCommand(flags *globalFlags) *cobra.Command {
	var opts cleanup.Options
	cmd := &cobra.Command{
		Use:   "cleanup <issue|pr|branch>...",
		Short: "Tear down one or more workspaces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]identifier.Parsed, 0, len(args))
			for _, raw := range args {
				id, err := identifier.Parse(raw)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if len(ids) == 1 && ids[0].Kind == identifier.PR && opts.BranchHint == "" {
				opts.BranchHint = issues.HeadBranchForPR(cmd.Context(), a.forge(), a.primary, ids[0].Number)
			}
			results, err := a.orchestrator().CleanupMany(cmd.Context(), ids, opts)
			ok := true
			for _, r := range results {
				fmt.Print(renderCleanup(r))
				ok = ok && r.Success
			}
			if err != nil {
				return err
			}
			if !ok {
				return errNotSuccessful
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Remove even with uncommitted changes")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would happen without changing anything")
	cmd.Flags().BoolVar(&opts.DeleteBranch, "delete-branch", false, "Also delete the git branch")
	cmd.Flags().BoolVar(&opts.KeepDatabase, "keep-database", false, "Leave the database branch in place")
	return cmd
}

func newDoctorCommand(flags *globalFlags) *cobra.Command {
	var clearLogs bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check installed tools and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			if clearLogs {
				n, err := logger.ClearLogs()
				if err != nil {
					return err
				}
				fmt.Println(secondaryStyle.Render(fmt.Sprintf("  removed %d log file(s)", n)))
			}

			results := cli.NewChecker(a.executor).CheckAll(ctx, cli.Prerequisites(a.settings))
			fmt.Print(renderChecks(results))

			if a.db != nil && a.db.IsConfigured() && a.db.IsCLIAvailable(ctx) {
				authed, err := a.db.IsAuthenticated(ctx, a.primary)
				switch {
				case err != nil:
					fmt.Println(warningStyle.Render("  ! "+a.db.Name()+" authentication check failed:"), err)
				case !authed:
					fmt.Println(warningStyle.Render("  ! not logged in to " + a.db.Name()))
				}
			}

			if forge := a.forge(); !forge.IsAvailable(ctx) {
				fmt.Println(warningStyle.Render("  ! "+forge.Name()+" lookups unavailable (gh missing or not logged in); plain issue-N/pr-N names will be used"))
			}

			if _, err := os.Stat(a.settings.WorktreeDir); err == nil {
				fmt.Println(secondaryStyle.Render("  worktrees: " + a.settings.WorktreeDir))
			}
			return cli.ValidateRequired(results)
		},
	}
	cmd.Flags().BoolVar(&clearLogs, "clear-logs", false, "Delete hatchery log files before checking")
	return cmd
}
