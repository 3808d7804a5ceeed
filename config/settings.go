// Package config loads hatchery settings. Settings is a plain value passed
// explicitly into every component; nothing here is global.
//
// Sources, later overriding earlier:
//   - built-in defaults (Defaults)
//   - the global config.json under paths.ConfigDir, JSON with comments allowed
//   - the repository's .hatchery/settings.yaml
//
// A zero value in a source means "not set" and leaves the earlier value alone.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/zhubert/hatchery/paths"
)

const (
	repoConfigDir  = ".hatchery"
	repoConfigFile = "settings.yaml"
)

// Settings configures worktree, integration and cleanup behavior.
type Settings struct {
	// TrunkBranch is the integration branch. Default "main".
	TrunkBranch string `json:"trunk_branch,omitempty" yaml:"trunk_branch,omitempty"`
	// ProtectedBranches can never be deleted. TrunkBranch is always added on
	// top of this list. Default main, master, develop.
	ProtectedBranches []string `json:"protected_branches,omitempty" yaml:"protected_branches,omitempty"`
	// WorktreeDir is where new worktrees go. Default <data>/worktrees/<repo>.
	WorktreeDir string `json:"worktree_dir,omitempty" yaml:"worktree_dir,omitempty"`
	// BasePort plus an issue or PR number is the workspace's dev server port. Default 3000.
	BasePort int `json:"base_port,omitempty" yaml:"base_port,omitempty"`
	// BinDir holds per-workspace executables named <tool>-<identifier>. Default <data>/bin.
	BinDir string `json:"bin_dir,omitempty" yaml:"bin_dir,omitempty"`
	// EnvFiles are read, in order, to decide whether a workspace owns a
	// database branch. Default .env.local, .env.
	EnvFiles []string `json:"env_files,omitempty" yaml:"env_files,omitempty"`
	// DevServerNames are process names treated as development servers.
	DevServerNames []string `json:"dev_server_names,omitempty" yaml:"dev_server_names,omitempty"`

	Database DatabaseSettings `json:"database,omitempty" yaml:"database,omitempty"`
	Agent    AgentSettings    `json:"agent,omitempty" yaml:"agent,omitempty"`
}

// DatabaseSettings selects a database-branch provider. An empty Provider
// disables database branches.
type DatabaseSettings struct {
	Provider     string `json:"provider,omitempty" yaml:"provider,omitempty"`
	ProjectID    string `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	ParentBranch string `json:"parent_branch,omitempty" yaml:"parent_branch,omitempty"`
	// EnvVar names the connection string variable. Default DATABASE_URL.
	EnvVar string `json:"env_var,omitempty" yaml:"env_var,omitempty"`
}

// AgentSettings configures the conflict-resolution agent.
type AgentSettings struct {
	// Command is the agent executable. Default "claude"; "none" disables the agent.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	// Timeout bounds the single agent attempt. Default 10m.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// AgentDisabled is the Command value that turns the agent off.
const AgentDisabled = "none"

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		TrunkBranch:       "main",
		ProtectedBranches: []string{"main", "master", "develop"},
		BasePort:          3000,
		EnvFiles:          []string{".env.local", ".env"},
		DevServerNames: []string{
			"node", "npm", "pnpm", "yarn", "bun", "deno",
			"vite", "next", "nuxt", "webpack", "nodemon",
		},
		Database: DatabaseSettings{EnvVar: "DATABASE_URL"},
		Agent:    AgentSettings{Command: "claude", Timeout: Duration{10 * time.Minute}},
	}
}

// Load returns the effective settings for the repository at repoRoot.
func Load(repoRoot string) (Settings, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Settings{}, err
	}
	repo, err := LoadRepo(repoRoot)
	if err != nil {
		return Settings{}, err
	}

	s := Defaults()
	s.Overlay(global)
	s.Overlay(repo)
	if err := s.resolveDirs(repoRoot); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

// LoadGlobal reads the global config file. A missing file yields zero settings.
func LoadGlobal() (Settings, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return Settings{}, err
	}
	return loadJSONC(path)
}

func loadJSONC(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &s); err != nil {
		return s, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, nil
}

// RepoSettingsPath returns the per-repository settings file path.
func RepoSettingsPath(repoRoot string) string {
	return filepath.Join(repoRoot, repoConfigDir, repoConfigFile)
}

// LoadRepo reads .hatchery/settings.yaml. A missing file yields zero settings.
func LoadRepo(repoRoot string) (Settings, error) {
	var s Settings
	path := RepoSettingsPath(repoRoot)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read repository settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, nil
}

// Overlay copies every set field of o onto s.
func (s *Settings) Overlay(o Settings) {
	setString(&s.TrunkBranch, o.TrunkBranch)
	setString(&s.WorktreeDir, o.WorktreeDir)
	setString(&s.BinDir, o.BinDir)
	if o.BasePort != 0 {
		s.BasePort = o.BasePort
	}
	if o.ProtectedBranches != nil {
		s.ProtectedBranches = o.ProtectedBranches
	}
	if o.EnvFiles != nil {
		s.EnvFiles = o.EnvFiles
	}
	if o.DevServerNames != nil {
		s.DevServerNames = o.DevServerNames
	}
	setString(&s.Database.Provider, o.Database.Provider)
	setString(&s.Database.ProjectID, o.Database.ProjectID)
	setString(&s.Database.ParentBranch, o.Database.ParentBranch)
	setString(&s.Database.EnvVar, o.Database.EnvVar)
	setString(&s.Agent.Command, o.Agent.Command)
	if o.Agent.Timeout.Duration != 0 {
		s.Agent.Timeout = o.Agent.Timeout
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// resolveDirs fills directory defaults and makes relative paths absolute
// against repoRoot.
func (s *Settings) resolveDirs(repoRoot string) error {
	if s.WorktreeDir == "" {
		base, err := paths.WorktreesDir()
		if err != nil {
			return err
		}
		s.WorktreeDir = filepath.Join(base, filepath.Base(repoRoot))
	} else if !filepath.IsAbs(s.WorktreeDir) {
		s.WorktreeDir = filepath.Join(repoRoot, s.WorktreeDir)
	}
	if s.BinDir == "" {
		dir, err := paths.BinDir()
		if err != nil {
			return err
		}
		s.BinDir = dir
	} else if !filepath.IsAbs(s.BinDir) {
		s.BinDir = filepath.Join(repoRoot, s.BinDir)
	}
	return nil
}

// Validate reports settings that cannot work.
func (s Settings) Validate() error {
	if s.TrunkBranch == "" {
		return fmt.Errorf("trunk_branch must not be empty")
	}
	if s.BasePort < 1 || s.BasePort > 65535 {
		return fmt.Errorf("base_port %d out of range", s.BasePort)
	}
	switch s.Database.Provider {
	case "", "neon":
	default:
		return fmt.Errorf("unknown database provider %q", s.Database.Provider)
	}
	if s.Agent.Timeout.Duration < 0 {
		return fmt.Errorf("agent timeout must not be negative")
	}
	return nil
}

// Port returns the dev server port for an issue or PR number.
func (s Settings) Port(number int) int {
	return s.BasePort + number
}

// AgentEnabled reports whether a conflict-resolution agent is configured.
func (s Settings) AgentEnabled() bool {
	return s.Agent.Command != "" && s.Agent.Command != AgentDisabled
}
