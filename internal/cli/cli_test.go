package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagewright/internal/config"
	"pagewright/internal/store"
)

// newTestApp wires an app around the scripted provider and a temp
// directory for all outputs.
func newTestApp(t *testing.T, input string) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "scripted"
	cfg.Publish.OutputPath = filepath.Join(dir, "index.html")
	cfg.Publish.RepoPath = dir
	cfg.Store.Path = filepath.Join(dir, "runs.db")

	out := &bytes.Buffer{}
	return &App{
		Config: cfg,
		Log:    zap.NewNop(),
		Out:    out,
		In:     strings.NewReader(input),
	}, out
}

func TestRunWorkflowApproved(t *testing.T) {
	app, out := newTestApp(t, "APPROVED\n")

	err := app.runWorkflow(context.Background(), "build a demo page")
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "requirements")
	assert.Contains(t, text, "builder")
	assert.Contains(t, text, "reviewer")
	assert.Contains(t, text, "marked the page ready")
	assert.Contains(t, text, "Saved")
	// No repository in the temp dir, so the publish stayed local.
	assert.Contains(t, text, "local only")
	assert.FileExists(t, app.Config.Publish.OutputPath)
}

func TestRunWorkflowDeclined(t *testing.T) {
	app, out := newTestApp(t, "no thanks\n")

	err := app.runWorkflow(context.Background(), "build a demo page")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Not published")
	assert.Contains(t, out.String(), "no thanks")
	assert.NoFileExists(t, app.Config.Publish.OutputPath)
}

func TestRunWorkflowArchivesRun(t *testing.T) {
	app, _ := newTestApp(t, "APPROVED\n")

	require.NoError(t, app.runWorkflow(context.Background(), "build a demo page"))

	archive, err := store.Open(app.Config.Store.Path)
	require.NoError(t, err)
	defer archive.Close()

	runs, err := archive.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "build a demo page", runs[0].Request)
}

func TestListRunsEmpty(t *testing.T) {
	app, out := newTestApp(t, "")

	require.NoError(t, app.listRuns(context.Background()))
	assert.Contains(t, out.String(), "No runs archived yet")
}

func TestBuildClientUnknownProvider(t *testing.T) {
	app, _ := newTestApp(t, "")
	app.Config.LLM.Provider = "carrier-pigeon"

	_, err := app.buildClient()
	assert.ErrorContains(t, err, "unknown llm provider")
}

func TestBuildStrategyUnknown(t *testing.T) {
	app, _ := newTestApp(t, "")
	app.Config.Selector.Strategy = "coin-flip"

	client, err := app.buildClient()
	require.NoError(t, err)
	_, err = app.buildStrategy(client)
	assert.ErrorContains(t, err, "unknown selector strategy")
}

func TestRootCommandHasSubcommands(t *testing.T) {
	app, _ := newTestApp(t, "")
	root := newRootCommand(app)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "runs")
}

func TestExitError(t *testing.T) {
	err := NewExitError(3)
	assert.Equal(t, "exit status 3", err.Error())

	code, ok := IsExitError(err)
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	_, ok = IsExitError(nil)
	assert.False(t, ok)
}
