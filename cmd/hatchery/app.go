package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/term"

	"github.com/zhubert/hatchery/agent"
	"github.com/zhubert/hatchery/cleanup"
	"github.com/zhubert/hatchery/config"
	"github.com/zhubert/hatchery/database"
	pexec "github.com/zhubert/hatchery/exec"
	"github.com/zhubert/hatchery/git"
	"github.com/zhubert/hatchery/integrate"
	"github.com/zhubert/hatchery/issues"
	"github.com/zhubert/hatchery/logger"
	"github.com/zhubert/hatchery/process"
)

// errNotSuccessful makes the process exit non-zero after a result that was
// already rendered.
var errNotSuccessful = errors.New("operation did not succeed")

// globalFlags are the root command's persistent flags.
type globalFlags struct {
	debug bool
	repo  string
}

// app is everything a command needs, built once per invocation.
type app struct {
	cwd      string
	repo     git.RepoInfo
	primary  string
	settings config.Settings
	executor pexec.CommandExecutor
	git      *git.GitService
	db       database.Provider
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cwd := flags.repo
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cwd = wd
	}

	executor := pexec.NewRealExecutor(pexec.NonInteractiveGitEnv...)
	gitSvc := git.NewGitServiceWithExecutor(executor)

	info, err := gitSvc.DetectRepo(ctx, cwd)
	if err != nil {
		return nil, err
	}
	primary, err := gitSvc.PrimaryWorktreePath(ctx, info.Root)
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(primary)
	if err != nil {
		return nil, err
	}

	var confirmer database.Confirmer = database.AlwaysConfirm{}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		confirmer = database.PromptConfirmer{}
	}
	db, err := database.New(settings.Database, executor, confirmer)
	if err != nil {
		return nil, err
	}

	logger.Get().Debug("hatchery started", "repo", primary, "worktree", info.Root, "branch", info.Branch, "trunk", settings.TrunkBranch)
	return &app{
		cwd:      cwd,
		repo:     info,
		primary:  primary,
		settings: settings,
		executor: executor,
		git:      gitSvc,
		db:       db,
	}, nil
}

func (a *app) agent() agent.Agent {
	if !a.settings.AgentEnabled() {
		return agent.Unavailable{}
	}
	return agent.NewClaudeCLI(a.executor, a.settings.Agent.Command, a.settings.Agent.Timeout.Duration)
}

func (a *app) engine() *integrate.Engine {
	return integrate.NewEngine(a.git, a.agent(), a.settings.TrunkBranch, logger.WithComponent("integrate"))
}

func (a *app) orchestrator() *cleanup.Orchestrator {
	processes := process.NewManager(a.executor, a.settings.DevServerNames)
	return cleanup.NewOrchestrator(a.primary, a.settings, a.git, processes, a.db)
}

// forge looks up issue titles and pull request heads on GitHub.
func (a *app) forge() issues.Provider {
	return issues.NewGitHubProvider(a.executor)
}
