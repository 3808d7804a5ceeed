package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhubert/hatchery/cleanup"
	"github.com/zhubert/hatchery/cli"
	"github.com/zhubert/hatchery/config"
	"github.com/zhubert/hatchery/git"
	"github.com/zhubert/hatchery/integrate"
)

var (
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	secondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	branchStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
)

func renderWorktrees(worktrees []git.Worktree, settings config.Settings) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Workspaces") + "\n")
	for _, w := range worktrees {
		branch := w.Branch
		if branch == "" {
			branch = "(detached)"
		}
		line := fmt.Sprintf("  %-32s %s", w.Name(), branchStyle.Render(branch))
		if n, ok := git.ExtractPRNumber(w.Name()); ok && !w.Primary {
			line += secondaryStyle.Render(fmt.Sprintf("  port %d", settings.Port(n)))
		} else if n, ok := git.ExtractIssueNumber(w.Branch); ok {
			line += secondaryStyle.Render(fmt.Sprintf("  port %d", settings.Port(n)))
		}
		if w.Primary {
			line += secondaryStyle.Render("  (primary)")
		}
		if w.Locked {
			line += warningStyle.Render("  locked")
		}
		if w.Prunable {
			line += warningStyle.Render("  prunable")
		}
		sb.WriteString(line + "\n")
		sb.WriteString(secondaryStyle.Render("    "+w.Path) + "\n")
	}
	return sb.String()
}

func renderOutcome(out integrate.Outcome) string {
	var sb strings.Builder
	prefix := ""
	if out.DryRun {
		prefix = "[dry-run] "
	}
	switch {
	case out.State == integrate.StateFailed || out.State == integrate.StateConflictUnresolved:
		sb.WriteString(errorStyle.Render(prefix+"Integration stopped") + secondaryStyle.Render(" ("+string(out.State)+")") + "\n")
	case out.Merged:
		sb.WriteString(successStyle.Render(prefix+"Merged") + fmt.Sprintf(" %s into %s\n", branchStyle.Render(out.Branch), out.Trunk))
	case out.AlreadyMerged:
		sb.WriteString(successStyle.Render(prefix+"Already merged") + fmt.Sprintf(" %s is contained in %s\n", branchStyle.Render(out.Branch), out.Trunk))
	case out.UpToDate:
		sb.WriteString(successStyle.Render(prefix+"Up to date") + fmt.Sprintf(" %s already contains %s\n", branchStyle.Render(out.Branch), out.Trunk))
	case out.Rebased:
		sb.WriteString(successStyle.Render(prefix+"Rebased") + fmt.Sprintf(" %s onto %s\n", branchStyle.Render(out.Branch), out.Trunk))
	default:
		sb.WriteString(headerStyle.Render(prefix+"Would integrate") + fmt.Sprintf(" %s into %s\n", branchStyle.Render(out.Branch), out.Trunk))
	}
	if out.ConflictsResolved {
		sb.WriteString(secondaryStyle.Render("  conflicts resolved by agent") + "\n")
	}
	for _, c := range out.Commits {
		sb.WriteString(secondaryStyle.Render("  "+c.String()) + "\n")
	}
	return sb.String()
}

func renderCleanup(r *cleanup.Result) string {
	var sb strings.Builder
	title := "Cleanup " + r.Identifier.String()
	if r.DryRun {
		title = "[dry-run] " + title
	}
	sb.WriteString(headerStyle.Render(title) + secondaryStyle.Render(" "+r.OperationID) + "\n")
	for _, op := range r.Operations {
		mark := successStyle.Render("✓")
		if !op.Success {
			mark = errorStyle.Render("✗")
		} else if !op.Deleted {
			mark = secondaryStyle.Render("○")
		}
		fmt.Fprintf(&sb, "  %s %-13s %s\n", mark, op.Kind, op.Message)
		if op.Err != nil {
			for _, line := range strings.Split(op.Err.Error(), "\n") {
				sb.WriteString(errorStyle.Render("      "+line) + "\n")
			}
		}
	}
	if n := len(r.Errors()); n > 0 {
		sb.WriteString(errorStyle.Render(fmt.Sprintf("  %d step(s) failed", n)) + "\n")
	}
	return sb.String()
}

func renderChecks(results []cli.CheckResult) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("CLI Prerequisites") + "\n")
	for _, r := range results {
		p := r.Prerequisite
		switch {
		case r.Found:
			fmt.Fprintf(&sb, "  %s %s", successStyle.Render("✓"), p.Name)
			if r.Version != "" {
				sb.WriteString(secondaryStyle.Render(" (" + r.Version + ")"))
			}
		case p.Required:
			fmt.Fprintf(&sb, "  %s %s %s", errorStyle.Render("✗"), p.Name, errorStyle.Render("[REQUIRED]"))
		default:
			fmt.Fprintf(&sb, "  %s %s %s", warningStyle.Render("○"), p.Name, secondaryStyle.Render("[optional: "+p.Feature+"]"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
