package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pagewright/internal/driver"
	"pagewright/internal/server"
)

func newServeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow over HTTP with the browser UI",
		Long: `Start the HTTP server. The embedded UI lives at /, the JSON API
under /api/runs. Runs are archived to the configured database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.serve(cmd.Context())
		},
	}
}

func (app *App) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	archive, err := app.openStore()
	if err != nil {
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}
	defer archive.Close()

	client, err := app.buildClient()
	if err != nil {
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}
	strategy, err := app.buildStrategy(client)
	if err != nil {
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}
	roles, err := app.buildRoles()
	if err != nil {
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}

	factory := server.DriverFactory(func(cb driver.TurnCallback) *driver.Driver {
		d := driver.New(strategy, client, roles, app.Log)
		d.SetTurnCallback(cb)
		return d
	})

	srv, err := server.New(factory, app.buildGate(), archive, app.Log)
	if err != nil {
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}

	httpServer := &http.Server{
		Addr:    app.Config.Server.Addr,
		Handler: srv.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		app.Log.Info("server listening", zap.String("addr", httpServer.Addr))
		fmt.Fprintln(app.Out, successStyle.Render("Listening on "+httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
			return NewExitError(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			app.Log.Warn("shutdown incomplete", zap.Error(err))
		}
	}
	return nil
}
