package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CurrentSchemaVersion is bumped whenever the persisted document shape
// changes in a way that requires migration.
const CurrentSchemaVersion = 2

// AgentOption describes one flag/positional contributed to an agent's
// spawn command line (§6 "Agent option assembly").
type AgentOption struct {
	Name    string   `yaml:"name"`
	Flag    string   `yaml:"flag,omitempty"`
	Type    string   `yaml:"type"` // "bool" | "string"
	Choices []string `yaml:"choices,omitempty"`
	Group   string   `yaml:"group,omitempty"`
	Default string   `yaml:"default,omitempty"`
}

// AgentDef is one entry in the persisted `agents` list.
type AgentDef struct {
	ID                string        `yaml:"id"`
	Name              string        `yaml:"name"`
	Kind              string        `yaml:"kind"` // "agent" | "terminal"
	Command           string        `yaml:"command"`
	BaseArgs          []string      `yaml:"baseArgs,omitempty"`
	Options           []AgentOption `yaml:"options,omitempty"`
	DetectionStrategy string        `yaml:"detectionStrategy,omitempty"`
	Icon              string        `yaml:"icon,omitempty"`
	IconColor         string        `yaml:"iconColor,omitempty"`
	// AutoApprovalNewline decides whether an auto-approval success
	// synthesizes a newline to this agent's stdin (spec §9 open question
	// #1): default true for kind=agent, false for kind=terminal.
	AutoApprovalNewline *bool `yaml:"autoApprovalNewline,omitempty"`
}

// NewlineOnAutoApproval resolves the per-agent open-question default.
func (a AgentDef) NewlineOnAutoApproval() bool {
	if a.AutoApprovalNewline != nil {
		return *a.AutoApprovalNewline
	}
	return a.Kind != "terminal"
}

// StatusHooks holds the four per-transition shell commands (§4.7, §6).
// An empty string means the hook is disabled.
type StatusHooks struct {
	OnIdle                string `yaml:"onIdle,omitempty"`
	OnBusy                string `yaml:"onBusy,omitempty"`
	OnWaitingInput        string `yaml:"onWaitingInput,omitempty"`
	OnPendingAutoApproval string `yaml:"onPendingAutoApproval,omitempty"`
}

// WorktreeHooks holds worktree lifecycle hooks.
type WorktreeHooks struct {
	PostCreation string `yaml:"postCreation,omitempty"`
}

// WorktreeConfig holds worktree behaviour options (§6). The daemon only
// consumes PostCreation directly (C7); the rest describe the external
// worktree-management collaborator's behaviour and are passed through.
type WorktreeConfig struct {
	AutoDirectory        bool   `yaml:"autoDirectory"`
	AutoDirectoryPattern string `yaml:"autoDirectoryPattern,omitempty"`
	CopySessionData      bool   `yaml:"copySessionData"`
	SortByLastSession    bool   `yaml:"sortByLastSession"`
}

// AutoApprovalConfig configures the C8 verifier cycle.
type AutoApprovalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	CustomCommand string `yaml:"customCommand,omitempty"`
	TimeoutSecs   int    `yaml:"timeout,omitempty"`
}

// Shortcut is one TUI key binding entry.
type Shortcut struct {
	Action string `yaml:"action"`
	Key    string `yaml:"key"`
}

// Config is the single structured persisted document (§6).
type Config struct {
	Shortcuts      []Shortcut         `yaml:"shortcuts,omitempty"`
	StatusHooks    StatusHooks        `yaml:"statusHooks,omitempty"`
	WorktreeHooks  WorktreeHooks      `yaml:"worktreeHooks,omitempty"`
	Worktree       WorktreeConfig     `yaml:"worktree,omitempty"`
	Agents         []AgentDef         `yaml:"agents,omitempty"`
	DefaultAgentID string             `yaml:"defaultAgentId,omitempty"`
	SchemaVersion  int                `yaml:"schemaVersion"`
	AutoApproval   AutoApprovalConfig `yaml:"autoApproval,omitempty"`

	// Projects is the registry of known project roots managed via the
	// CLI's `add`/`remove`/`list` subcommands (§7). It is independent of
	// the orchestrator's live projectPath → manager table, which is
	// populated lazily whenever a session is created.
	Projects []string `yaml:"projects,omitempty"`

	Port         int    `yaml:"port,omitempty"`
	WebEnabled   bool   `yaml:"webEnabled"`
	AccessToken  string `yaml:"accessToken,omitempty"`
	PasscodeHash string `yaml:"passcodeHash,omitempty"`

	// RevokedTokens holds access tokens superseded by `auth
	// regenerate-token`, so the gateway can tell a client presenting one
	// of them that it was revoked (403) rather than simply wrong (401).
	// Bounded to revokedTokensLimit most-recent entries.
	RevokedTokens []string `yaml:"revokedTokens,omitempty"`

	// Legacy fields, accepted on read and migrated on first write (§6,
	// testable property 9). Never written back once migrated.
	CommandPresets []LegacyCommandPreset `yaml:"commandPresets,omitempty"`
	WebAuthToken   string                `yaml:"webAuthToken,omitempty"`
}

// LegacyCommandPreset is the pre-schemaVersion-2 shape of an agent entry.
type LegacyCommandPreset struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// Default returns a document with the recognized built-in agents (§2
// glossary: claude, codex, gemini, cursor, cline, github-copilot, pi,
// plus a plain terminal) and sane defaults for everything else.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		DefaultAgentID: "claude",
		Worktree: WorktreeConfig{
			AutoDirectory:        true,
			AutoDirectoryPattern: "{name}-{branch}",
		},
		AutoApproval: AutoApprovalConfig{
			Enabled:     false,
			TimeoutSecs: 30,
		},
		Agents: []AgentDef{
			{ID: "claude", Name: "Claude Code", Kind: "agent", Command: "claude", DetectionStrategy: "claude"},
			{ID: "codex", Name: "Codex", Kind: "agent", Command: "codex", DetectionStrategy: "codex"},
			{ID: "gemini", Name: "Gemini CLI", Kind: "agent", Command: "gemini", DetectionStrategy: "gemini"},
			{ID: "cursor", Name: "Cursor Agent", Kind: "agent", Command: "cursor-agent", DetectionStrategy: "cursor"},
			{ID: "github-copilot", Name: "GitHub Copilot CLI", Kind: "agent", Command: "copilot", DetectionStrategy: "github-copilot"},
			{ID: "cline", Name: "Cline", Kind: "agent", Command: "cline", DetectionStrategy: "cline"},
			{ID: "pi", Name: "Pi", Kind: "agent", Command: "pi", DetectionStrategy: "pi"},
			{ID: "terminal", Name: "Terminal", Kind: "terminal", Command: os.Getenv("SHELL"), DetectionStrategy: "unknown"},
		},
	}
}

// Load reads the document at path. A missing file is not an error: the
// caller gets Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	cfg.Agents = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.migrate()
	return cfg, nil
}

// Save writes the document, never re-emitting legacy fields once
// migrated (property 9: migration is one-way).
func Save(path string, cfg *Config) error {
	cfg.migrate()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// revokedTokensLimit bounds how many superseded access tokens are
// remembered for the 401-vs-403 distinction, so the list can't grow
// without bound across repeated regenerations.
const revokedTokensLimit = 10

// RevokeToken records token as superseded, most-recent first, trimming
// the list to revokedTokensLimit entries.
func (c *Config) RevokeToken(token string) {
	if token == "" {
		return
	}
	c.RevokedTokens = append([]string{token}, c.RevokedTokens...)
	if len(c.RevokedTokens) > revokedTokensLimit {
		c.RevokedTokens = c.RevokedTokens[:revokedTokensLimit]
	}
}

// AddProject registers path in the project registry, idempotently.
func (c *Config) AddProject(path string) {
	for _, p := range c.Projects {
		if p == path {
			return
		}
	}
	c.Projects = append(c.Projects, path)
}

// RemoveProject unregisters path, reporting whether it was present.
func (c *Config) RemoveProject(path string) bool {
	for i, p := range c.Projects {
		if p == path {
			c.Projects = append(c.Projects[:i], c.Projects[i+1:]...)
			return true
		}
	}
	return false
}

// migrate folds legacy fields into their modern equivalents in place and
// clears the legacy fields so a subsequent Save never re-emits them.
func (c *Config) migrate() {
	if len(c.CommandPresets) > 0 {
		for _, p := range c.CommandPresets {
			kind := "agent"
			strategy := "unknown"
			switch p.Name {
			case "claude", "codex", "gemini", "cursor", "cline", "pi", "github-copilot":
				strategy = p.Name
			}
			c.Agents = append(c.Agents, AgentDef{
				ID:                p.Name,
				Name:              p.Name,
				Kind:              kind,
				Command:           p.Command,
				BaseArgs:          p.Args,
				DetectionStrategy: strategy,
			})
		}
		c.CommandPresets = nil
	}
	if c.WebAuthToken != "" && c.AccessToken == "" {
		c.AccessToken = c.WebAuthToken
	}
	c.WebAuthToken = ""
	if c.SchemaVersion < CurrentSchemaVersion {
		c.SchemaVersion = CurrentSchemaVersion
	}
}
