package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/scheduler"
	"github.com/wenfer/strmgate/internal/tasks"
)

// newTaskCmd groups Task Registry (C8) CRUD plus the Scheduler (C9) and
// Event Watcher (C10) controls a task's schedule/watch fields drive.
func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage stub-sync tasks",
	}

	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskRunCmd())
	cmd.AddCommand(newTaskPauseCmd())
	cmd.AddCommand(newTaskResumeCmd())
	cmd.AddCommand(newTaskRmCmd())

	return cmd
}

func newTaskAddCmd() *cobra.Command {
	var (
		driveID      string
		sourceRootID string
		outputDir    string
		interval     time.Duration
		cron         string
		watch        bool
		includeVideo bool
		includeAudio bool
		customExts   string
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a stub-sync task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			id, err := ids.ParseDriveID(driveID)
			if err != nil {
				return fmt.Errorf("--drive: %w", err)
			}

			t := tasks.Task{
				DriveID:      id,
				Name:         args[0],
				SourceRootID: sourceRootID,
				OutputDir:    outputDir,
				IncludeVideo: includeVideo,
				IncludeAudio: includeAudio,
				WatchOn:      watch,
				ScheduleOn:   interval > 0 || cron != "",
			}

			if customExts != "" {
				t.CustomExts = strings.Split(customExts, ",")
			}

			switch {
			case cron != "":
				if _, err := scheduler.ParseCron(cron); err != nil {
					return fmt.Errorf("--cron: %w", err)
				}

				t.ScheduleKind = tasks.ScheduleCron
				t.ScheduleCron = cron
			case interval > 0:
				t.ScheduleKind = tasks.ScheduleInterval
				t.SchedulePeriod = interval
			default:
				t.ScheduleKind = tasks.ScheduleNone
			}

			created, err := app.Tasks.Create(cmd.Context(), t)
			if err != nil {
				return fmt.Errorf("creating task: %w", err)
			}

			if err := app.Scheduler.Add(created); err != nil {
				return fmt.Errorf("arming task schedule: %w", err)
			}

			if created.WatchOn {
				app.Watchers.Start(cmd.Context(), created)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created task %s (%s)\n", created.ID, created.Name)

			return nil
		},
	}

	cmd.Flags().StringVar(&driveID, "drive", "", "drive id the task reads from (required)")
	cmd.Flags().StringVar(&sourceRootID, "source-root", "", "upstream folder id to sync from (required)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "absolute path to write stub files to (required)")
	cmd.Flags().DurationVar(&interval, "every", 0, "run on a fixed interval, e.g. 1h")
	cmd.Flags().StringVar(&cron, "cron", "", "run on a five-field cron schedule")
	cmd.Flags().BoolVar(&watch, "watch", false, "start an event watcher requesting runs on upstream changes")
	cmd.Flags().BoolVar(&includeVideo, "include-video", true, "include video files")
	cmd.Flags().BoolVar(&includeAudio, "include-audio", false, "include audio files")
	cmd.Flags().StringVar(&customExts, "extensions", "", "comma-separated extension override, replaces include-video/include-audio")

	cmd.MarkFlagRequired("drive")
	cmd.MarkFlagRequired("source-root")
	cmd.MarkFlagRequired("output-dir")
	cmd.MarkFlagsMutuallyExclusive("every", "cron")

	return cmd
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := mustApp(cmd.Context())

			all, err := app.Tasks.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing tasks: %w", err)
			}

			w := cmd.OutOrStdout()

			for _, t := range all {
				fmt.Fprintf(w, "%-20s %-20s %-10s %-10s %d/%d items\n",
					t.ID, t.Name, t.State, t.ScheduleKind, t.CurrentIndex, t.TotalItems)
			}

			return nil
		},
	}
}

func newTaskRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run TASK_ID",
		Short: "Trigger an immediate out-of-band run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			id, err := ids.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			result, err := app.Scheduler.RunNow(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("running task: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run complete: %d created, %d updated, %d removed, %d errors\n",
				result.Created, result.Updated, result.Removed, result.ErrorCount)

			return nil
		},
	}
}

func newTaskPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause TASK_ID",
		Short: "Pause a task's schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			id, err := ids.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			if err := app.Scheduler.Pause(id); err != nil {
				return fmt.Errorf("pausing task: %w", err)
			}

			return nil
		},
	}
}

func newTaskResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume TASK_ID",
		Short: "Resume a task's schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			id, err := ids.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			if err := app.Scheduler.Resume(id); err != nil {
				return fmt.Errorf("resuming task: %w", err)
			}

			return nil
		},
	}
}

func newTaskRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm TASK_ID",
		Short: "Delete a task and stop its schedule/watcher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			id, err := ids.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			app.Scheduler.Remove(id)
			app.Watchers.Stop(id)

			if err := app.Tasks.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("deleting task: %w", err)
			}

			return nil
		},
	}
}
