package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pagewright/internal/conversation"
	"pagewright/internal/driver"
	"pagewright/internal/publish"
	"pagewright/internal/store"
)

func newRunCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run <request...>",
		Short: "Build a page from a request in the terminal",
		Long: `Run the full workflow for one request:
  1. requirements - clarify the request (you may be asked questions)
  2. builder      - produce the single-page application
  3. reviewer     - check it and signal readiness

When the reviewer signals readiness you are asked for the approval token.
Only the exact token APPROVED publishes the page; anything else declines.

Example:
  pagewright run a stopwatch with start, stop and reset`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runWorkflow(cmd.Context(), strings.Join(args, " "))
		},
	}
}

func (app *App) runWorkflow(parent context.Context, request string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := app.buildDriver()
	if err != nil {
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}

	reader := bufio.NewReader(app.In)
	d.SetTurnCallback(func(m conversation.Message) {
		fmt.Fprintf(app.Out, "\n%s\n%s\n", speakerLabel(m.Speaker), m.Text)
	})
	d.SetHumanInput(func(context.Context) (string, error) {
		fmt.Fprint(app.Out, dimStyle.Render("\nyour reply (empty to let the builder proceed): "))
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	})

	state := d.Run(ctx, request)
	app.saveRun(request, state)

	switch state.Outcome {
	case driver.OutcomeReadyForApproval:
		return app.promptAndPublish(ctx, reader, state)
	case driver.OutcomeSafetyLimitExceeded:
		fmt.Fprintln(app.Out, warnStyle.Render(
			"\nThe conversation hit the safety limit without converging. Start a fresh run to retry."))
		return NewExitError(1)
	default:
		msg := "\nThe run did not complete."
		if state.FailureReason != "" {
			msg += " " + state.FailureReason
		}
		fmt.Fprintln(app.Out, errorStyle.Render(msg))
		return NewExitError(1)
	}
}

// promptAndPublish asks for the approval token and routes the artifact
// through the publish gate. A declined approval is a normal exit, not an
// error.
func (app *App) promptAndPublish(ctx context.Context, reader *bufio.Reader, state *driver.WorkflowState) error {
	fmt.Fprintln(app.Out, successStyle.Render("\nThe reviewer marked the page ready."))
	fmt.Fprint(app.Out, "Type APPROVED to publish, anything else to decline: ")

	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}

	receipt, err := app.buildGate().Publish(ctx, state.History, line)
	var notApproved *publish.NotApprovedError
	switch {
	case errors.As(err, &notApproved):
		fmt.Fprintf(app.Out, "%s\n",
			warnStyle.Render(fmt.Sprintf("Not published: %q is not the approval token.", notApproved.Input)))
		return nil
	case errors.Is(err, publish.ErrNoArtifact):
		fmt.Fprintln(app.Out, errorStyle.Render("Nothing to publish: the builder produced no usable page."))
		return NewExitError(1)
	case err != nil:
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}

	app.printReceipt(receipt)
	return nil
}

func (app *App) printReceipt(r *publish.Receipt) {
	fmt.Fprintln(app.Out, successStyle.Render(
		fmt.Sprintf("\nSaved %d bytes to %s", r.Bytes, r.LocalPath)))
	switch {
	case r.LocalOnly:
		fmt.Fprintln(app.Out, dimStyle.Render(
			"No repository configured: the page was kept local only."))
	case r.RemoteSuccess:
		fmt.Fprintln(app.Out, successStyle.Render("Published to remote."))
		if r.Locators != nil {
			fmt.Fprintln(app.Out, "  view: "+r.Locators.BlobURL)
			fmt.Fprintln(app.Out, "  raw:  "+r.Locators.RawURL)
			fmt.Fprintln(app.Out, "  page: "+r.Locators.PagesURL)
		}
	default:
		fmt.Fprintln(app.Out, warnStyle.Render(
			"Remote publish failed: "+r.RemoteError))
		fmt.Fprintln(app.Out, dimStyle.Render(
			"Your page is safe on disk; retry the publish when the remote recovers."))
	}
}

// saveRun archives the finished run; archive problems are logged only.
func (app *App) saveRun(request string, state *driver.WorkflowState) {
	archive, err := app.openStore()
	if err != nil {
		app.Log.Warn("run archive unavailable", zap.Error(err))
		return
	}
	defer archive.Close()

	err = archive.SaveRun(context.Background(), &store.Run{
		Request:       request,
		Outcome:       state.Outcome,
		TurnCount:     state.TurnCount,
		FailureReason: state.FailureReason,
		History:       state.History,
	})
	if err != nil {
		app.Log.Warn("failed to archive run", zap.Error(err))
	}
}
