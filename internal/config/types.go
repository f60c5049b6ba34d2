// Package config provides configuration loading and management for
// pagewright.
//
// Configuration is loaded using Viper, supporting YAML config files and
// environment variable overrides. The package provides sensible defaults
// that work out of the box, with the ability to customize the model
// backend, turn selection, publishing, and persistence.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//
// Configuration priority (highest to lowest):
//  1. Environment variables (PAGEWRIGHT_ prefix)
//  2. Config file specified by PAGEWRIGHT_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/pagewright/pagewright.yaml
//     - macOS: ~/Library/Application Support/pagewright/pagewright.yaml
//     - Windows: %APPDATA%\pagewright\pagewright.yaml
//  4. ./pagewright.yaml (working-directory fallback)
//  5. [DefaultConfig] defaults
package config

import "time"

// Config represents the root configuration structure.
//
// This is the main configuration container loaded by [Loader] and used
// throughout the application. Use [DefaultConfig] to get sensible defaults.
type Config struct {
	// LLM contains the model backend settings.
	LLM LLMConfig `mapstructure:"llm"`

	// Selector controls how the next speaker is chosen each turn.
	Selector SelectorConfig `mapstructure:"selector"`

	// Publish configures the artifact output and the git publish step.
	Publish PublishConfig `mapstructure:"publish"`

	// Store configures the run archive database.
	Store StoreConfig `mapstructure:"store"`

	// Server configures the HTTP shell.
	Server ServerConfig `mapstructure:"server"`

	// RoleOverridesPath points at an optional YAML file replacing the
	// built-in role prompts. Empty means built-ins only.
	RoleOverridesPath string `mapstructure:"role_overrides_path"`

	// Log contains logging settings.
	Log LogConfig `mapstructure:"log"`
}

// LLMConfig contains model backend settings.
type LLMConfig struct {
	// Provider selects the backend: "openai" or "scripted".
	// The scripted provider replays canned replies and exists for demos
	// and tests; it needs no credentials.
	Provider string `mapstructure:"provider"`

	// Model is the chat model name, e.g. "gpt-4o-mini".
	Model string `mapstructure:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	// Default: "OPENAI_API_KEY".
	APIKeyEnv string `mapstructure:"api_key_env"`

	// BaseURL optionally points at an OpenAI-compatible endpoint.
	BaseURL string `mapstructure:"base_url"`
}

// SelectorConfig controls turn selection.
type SelectorConfig struct {
	// Strategy is "rules" (deterministic, default) or "llm"
	// (model-assisted with the rule table as fallback).
	Strategy string `mapstructure:"strategy"`

	// RequirementsTurnLimit is how many requirements messages may pass
	// without a human reply before the builder is forced to take over.
	// Default: 3.
	RequirementsTurnLimit int `mapstructure:"requirements_turn_limit"`
}

// PublishConfig configures the artifact output path and the git publish
// step.
type PublishConfig struct {
	// OutputPath is the fixed artifact location. Every approved publish
	// overwrites this one file. Default: "index.html".
	OutputPath string `mapstructure:"output_path"`

	// RepoPath is the working tree used for the remote publish step.
	// Default: current directory. A path without a repository means
	// local-save-only mode, which is not an error.
	RepoPath string `mapstructure:"repo_path"`

	// Remote is the push target. Default: "origin".
	Remote string `mapstructure:"remote"`

	// AuthorName and AuthorEmail sign the publish commits.
	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email"`

	// RemoteTimeout bounds the stage-commit-push step. Default: 2m.
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
}

// StoreConfig configures the run archive.
type StoreConfig struct {
	// Path is the SQLite database file. Default: "pagewright.db".
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP shell.
type ServerConfig struct {
	// Addr is the listen address. Default: ":8080".
	Addr string `mapstructure:"addr"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error". Default: "info".
	Level string `mapstructure:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `mapstructure:"development"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
//
// The defaults select the OpenAI backend with the key read from
// OPENAI_API_KEY, deterministic rule-based turn selection, a local
// index.html output with git publishing from the current directory, and a
// pagewright.db run archive. These defaults work without any configuration
// file once the API key is set.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Selector: SelectorConfig{
			Strategy:              "rules",
			RequirementsTurnLimit: 3,
		},
		Publish: PublishConfig{
			OutputPath:    "index.html",
			RepoPath:      ".",
			Remote:        "origin",
			AuthorName:    "pagewright",
			AuthorEmail:   "pagewright@localhost",
			RemoteTimeout: 2 * time.Minute,
		},
		Store: StoreConfig{
			Path: "pagewright.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
