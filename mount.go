package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wenfer/strmgate/internal/ids"
)

// newMountCmd exposes the supplemented Mount Registry: a lightweight
// alias -> (drive_id, root_id) mapping, independent of stub-sync tasks.
func newMountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount",
		Short: "Manage alias -> (drive, folder) mount bindings",
	}

	cmd.AddCommand(newMountAddCmd())
	cmd.AddCommand(newMountListCmd())
	cmd.AddCommand(newMountRmCmd())

	return cmd
}

func newMountAddCmd() *cobra.Command {
	var driveID string

	cmd := &cobra.Command{
		Use:   "add ALIAS ROOT_ID",
		Short: "Bind an alias to a drive's folder id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			id, err := ids.ParseDriveID(driveID)
			if err != nil {
				return fmt.Errorf("--drive: %w", err)
			}

			m, err := app.Mounts.Create(cmd.Context(), args[0], id, args[1])
			if err != nil {
				return fmt.Errorf("creating mount: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "mounted %s -> %s:%s\n", m.Alias, m.DriveID, m.RootID)

			return nil
		},
	}

	cmd.Flags().StringVar(&driveID, "drive", "", "drive id the alias resolves against (required)")
	cmd.MarkFlagRequired("drive")

	return cmd
}

func newMountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mount bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := mustApp(cmd.Context())

			all, err := app.Mounts.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing mounts: %w", err)
			}

			w := cmd.OutOrStdout()

			for _, m := range all {
				fmt.Fprintf(w, "%-20s %-20s %s\n", m.Alias, m.DriveID, m.RootID)
			}

			return nil
		},
	}
}

func newMountRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ALIAS",
		Short: "Remove a mount binding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			if err := app.Mounts.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("removing mount: %w", err)
			}

			return nil
		},
	}
}
