package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-binder/internal/clock"
	"github.com/JakeFAU/article-binder/internal/metrics"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every pending job in the job list",
		Long: `Runs each pending job through fetch, convert and merge. A job that fails
stays pending and is retried on the next run; the command itself only fails
when the job list cannot be read or the run is interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := a.Logger()

			summary, runErr := a.Runner().RunAll(cmd.Context())

			if path := a.Config().Metrics.Textfile; path != "" {
				if err := metrics.WriteTextfile(path, clock.System{}.Now()); err != nil {
					logger.Warn("metrics textfile not written", zap.Error(err))
				}
			}
			if runErr != nil {
				return fmt.Errorf("run: %w", runErr)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d jobs, %d completed, %d skipped, %d pending, %d empty\n",
				summary.RunID, summary.Total, summary.Completed, summary.Skipped, summary.Pending, summary.Empty)
			return nil
		},
	}
}
