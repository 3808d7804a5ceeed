package database

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// AlwaysConfirm approves every prompt. Used when not attached to a terminal.
type AlwaysConfirm struct{}

func (AlwaysConfirm) Confirm(string, string) (bool, error) { return true, nil }

// PromptConfirmer asks on the terminal with a yes/no form.
type PromptConfirmer struct{}

func confirmTheme() *huh.Theme {
	t := *huh.ThemeCharm()
	t.Focused.FocusedButton = t.Focused.FocusedButton.Background(lipgloss.Color("#D9534F"))
	t.Focused.Next = t.Focused.FocusedButton
	return &t
}

func newConfirmForm(title, description string, result *bool) *huh.Form {
	confirm := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Delete").
		Negative("Keep").
		Value(result)

	return huh.NewForm(huh.NewGroup(confirm)).
		WithTheme(confirmTheme()).
		WithShowHelp(false)
}

// Confirm runs the form. An aborted form counts as declined.
func (PromptConfirmer) Confirm(title, description string) (bool, error) {
	var ok bool
	if err := newConfirmForm(title, description, &ok).Run(); err != nil {
		if err == huh.ErrUserAborted {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
