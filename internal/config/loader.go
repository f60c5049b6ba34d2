package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// PAGEWRIGHT_LLM_MODEL overrides llm.model.
const envPrefix = "PAGEWRIGHT"

// configPathEnv names an explicit config file, bypassing the search chain.
const configPathEnv = "PAGEWRIGHT_CONFIG_PATH"

// Loader loads configuration via Viper.
//
// Use [NewLoader] followed by [Loader.Load]. The loader applies the
// priority chain documented on the package: environment variables, explicit
// config path, user config directory, working directory, defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with defaults and environment binding applied.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())
	return &Loader{v: v}
}

// Load reads configuration from the first available source and returns the
// merged result. A missing config file is not an error: defaults plus
// environment overrides apply. An explicitly named file that cannot be
// read is an error, since the user asked for it.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv(configPathEnv); path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return l.unmarshal()
	}

	for _, path := range searchPaths() {
		l.v.SetConfigFile(path)
		err := l.v.ReadInConfig()
		if err == nil {
			return l.unmarshal()
		}
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// searchPaths returns the config file candidates in priority order.
func searchPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "pagewright", "pagewright.yaml"))
	}
	paths = append(paths, "pagewright.yaml")
	return paths
}

// setDefaults registers every default so environment-only overrides work
// without a config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key_env", d.LLM.APIKeyEnv)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)

	v.SetDefault("selector.strategy", d.Selector.Strategy)
	v.SetDefault("selector.requirements_turn_limit", d.Selector.RequirementsTurnLimit)

	v.SetDefault("publish.output_path", d.Publish.OutputPath)
	v.SetDefault("publish.repo_path", d.Publish.RepoPath)
	v.SetDefault("publish.remote", d.Publish.Remote)
	v.SetDefault("publish.author_name", d.Publish.AuthorName)
	v.SetDefault("publish.author_email", d.Publish.AuthorEmail)
	v.SetDefault("publish.remote_timeout", d.Publish.RemoteTimeout)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("role_overrides_path", d.RoleOverridesPath)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// APIKey resolves the model API key from the configured environment
// variable.
func (c *LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}
