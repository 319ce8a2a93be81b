package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd starts the long-running process: the Scheduler's tick loop
// plus an Event Watcher for every watch-enabled task, running until a
// signal requests shutdown.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and event watchers until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := mustApp(cmd.Context())

			ctx := shutdownContext(cmd.Context(), app.Logger)

			app.Scheduler.Start(ctx)
			defer app.Scheduler.Stop()

			all, err := app.Tasks.List(ctx)
			if err != nil {
				return fmt.Errorf("listing tasks: %w", err)
			}

			for _, t := range all {
				if t.WatchOn {
					app.Watchers.Start(ctx, t)
				}
			}

			app.Logger.Info("strmgate serving", "tasks", len(all))

			<-ctx.Done()

			app.Logger.Info("shutting down")

			for _, t := range all {
				if t.WatchOn {
					app.Watchers.Stop(t.ID)
				}
			}

			return nil
		},
	}
}
