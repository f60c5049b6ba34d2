package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pagewright/internal/driver"
)

func newRunsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List archived workflow runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.listRuns(cmd.Context())
		},
	}
}

func (app *App) listRuns(ctx context.Context) error {
	archive, err := app.openStore()
	if err != nil {
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}
	defer archive.Close()

	runs, err := archive.ListRuns(ctx)
	if err != nil {
		fmt.Fprintln(app.Out, errorStyle.Render("error: "+err.Error()))
		return NewExitError(1)
	}
	if len(runs) == 0 {
		fmt.Fprintln(app.Out, dimStyle.Render("No runs archived yet."))
		return nil
	}

	for _, run := range runs {
		outcome := string(run.Outcome)
		switch run.Outcome {
		case driver.OutcomeReadyForApproval:
			outcome = successStyle.Render(outcome)
		case driver.OutcomeSafetyLimitExceeded:
			outcome = warnStyle.Render(outcome)
		case driver.OutcomeIncomplete:
			outcome = errorStyle.Render(outcome)
		}
		published := ""
		if run.Published {
			published = successStyle.Render(" [published]")
		}
		fmt.Fprintf(app.Out, "%s  %s  %2d turns  %s%s\n",
			dimStyle.Render(run.CreatedAt.Format("2006-01-02 15:04")),
			run.ID, run.TurnCount, outcome, published)
		fmt.Fprintf(app.Out, "    %s\n", run.Request)
	}
	return nil
}
