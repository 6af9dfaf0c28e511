package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/article-binder/internal/runner"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of every job in the job list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			coll, err := a.Store().Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load jobs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTATE\tURL\tOUTPUT")
			for i, job := range coll.Jobs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, runner.JobStatus(job), job.SourceURL, job.OutputPath)
			}
			return w.Flush()
		},
	}
}
