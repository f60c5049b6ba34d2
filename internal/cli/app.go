// Package cli implements the pagewright command line interface.
//
// Three commands cover the workflow: "run" drives a conversation in the
// terminal with interactive approval, "serve" exposes the same workflow
// over HTTP with the embedded UI, and "runs" lists archived runs.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pagewright/internal/config"
	"pagewright/internal/conversation"
	"pagewright/internal/driver"
	"pagewright/internal/llm"
	"pagewright/internal/publish"
	"pagewright/internal/role"
	"pagewright/internal/selector"
	"pagewright/internal/store"
)

// App carries the dependencies shared by all commands.
type App struct {
	Config *config.Config
	Log    *zap.Logger

	// Out receives user-facing command output. Defaults to stdout;
	// tests substitute a buffer.
	Out io.Writer

	// In supplies interactive input for the run command. Defaults to
	// stdin.
	In io.Reader
}

// Execute loads configuration, builds the application, and runs the root
// command. It returns the process exit code.
func Execute() int {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer log.Sync()

	app := &App{
		Config: cfg,
		Log:    log,
		Out:    os.Stdout,
		In:     os.Stdin,
	}

	if err := newRootCommand(app).Execute(); err != nil {
		if code, ok := IsExitError(err); ok {
			return code
		}
		return 1
	}
	return 0
}

func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "pagewright",
		Short: "Turn-taking page builder with human-gated publishing",
		Long: `pagewright coordinates three scripted roles - requirements, builder,
and reviewer - to produce a single-page web application from a free-text
request. Publishing is gated behind an explicit human approval token.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(app))
	root.AddCommand(newServeCommand(app))
	root.AddCommand(newRunsCommand(app))
	return root
}

// newLogger builds a zap logger from config.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// buildRoles returns the role registry with any configured overrides
// applied.
func (app *App) buildRoles() (*role.Registry, error) {
	roles := role.Defaults()
	if path := app.Config.RoleOverridesPath; path != "" {
		if err := roles.LoadOverrides(path); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// buildClient constructs the reply capability from config.
func (app *App) buildClient() (llm.Client, error) {
	switch app.Config.LLM.Provider {
	case "openai":
		return llm.NewOpenAIClient(
			app.Config.LLM.APIKey(),
			app.Config.LLM.Model,
			app.Config.LLM.BaseURL,
		)
	case "scripted":
		return llm.NewScripted(demoReplies()), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", app.Config.LLM.Provider)
	}
}

// buildStrategy constructs the turn selector from config.
func (app *App) buildStrategy(client llm.Client) (selector.Strategy, error) {
	rules := selector.Rules{
		RequirementsTurnLimit: app.Config.Selector.RequirementsTurnLimit,
	}
	switch app.Config.Selector.Strategy {
	case "", "rules":
		return rules, nil
	case "llm":
		s := selector.NewLLMStrategy(llm.SpeakerOracle{Client: client}, app.Log)
		s.Fallback = rules
		return s, nil
	default:
		return nil, fmt.Errorf("unknown selector strategy %q", app.Config.Selector.Strategy)
	}
}

// buildDriver wires a driver from config.
func (app *App) buildDriver() (*driver.Driver, error) {
	client, err := app.buildClient()
	if err != nil {
		return nil, err
	}
	strategy, err := app.buildStrategy(client)
	if err != nil {
		return nil, err
	}
	roles, err := app.buildRoles()
	if err != nil {
		return nil, err
	}
	return driver.New(strategy, client, roles, app.Log), nil
}

// buildGate wires the publish gate and its git publisher.
func (app *App) buildGate() *publish.Gate {
	pub := &publish.GitPublisher{
		RepoPath:    app.Config.Publish.RepoPath,
		Remote:      app.Config.Publish.Remote,
		AuthorName:  app.Config.Publish.AuthorName,
		AuthorEmail: app.Config.Publish.AuthorEmail,
		Log:         app.Log,
	}
	gate := publish.NewGate(app.Config.Publish.OutputPath, pub, app.Log)
	gate.SetRemoteTimeout(app.Config.Publish.RemoteTimeout)
	return gate
}

// openStore opens the run archive.
func (app *App) openStore() (*store.Store, error) {
	return store.Open(app.Config.Store.Path)
}

// demoReplies is the canned conversation for the scripted provider, used
// for offline demos.
func demoReplies() map[conversation.Speaker][]string {
	return map[conversation.Speaker][]string{
		conversation.RoleRequirements: {
			"Requirements are clear. Ready for development.",
		},
		conversation.RoleBuilder: {
			"```html\n<!DOCTYPE html>\n<html>\n<head><title>Demo</title></head>\n" +
				"<body><h1>Demo page</h1><p>Generated by the scripted provider.</p></body>\n</html>\n```",
		},
		conversation.RoleReviewer: {
			"The page matches the request. READY FOR USER APPROVAL",
		},
	}
}
