package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCleanupCommand(opts *rootOptions) *cobra.Command {
	var week int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clear every filled cell of a week column",
		Long:  `Start a cleanup job for the week and process it batch by batch until it completes, pausing jobs.batch_delay between batches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer log.Close()

			a, err := newApp(cmd.Context(), cfg, log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			job, err := a.cleanup.Start(ctx, week)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job %s: %d cells in week %d\n", job.ID, job.Total(), week)

			id := job.ID
			for !job.Status.Finished() {
				job, err = a.cleanup.ProcessBatch(ctx, id)
				if err != nil {
					return fmt.Errorf("job %s: %w", id, err)
				}
				fmt.Fprintf(out, "progress %d/%d\n", job.Processed, job.Total())
				if job.Status.Finished() {
					break
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(cfg.Jobs.BatchDelay):
				}
			}
			fmt.Fprintf(out, "job %s %s\n", id, job.Status)
			return nil
		},
	}
	cmd.Flags().IntVarP(&week, "week", "w", 0, "Week number (1-16)")
	_ = cmd.MarkFlagRequired("week")
	return cmd
}
