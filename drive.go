package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/upstream"
)

// newDriveCmd groups drive lifecycle subcommands (add/list/rm), mirroring
// the teacher's newDriveCmd() parent-with-subcommands shape.
func newDriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Manage configured upstream drives",
	}

	cmd.AddCommand(newDriveAddCmd())
	cmd.AddCommand(newDriveListCmd())
	cmd.AddCommand(newDriveRmCmd())
	cmd.AddCommand(newDriveResolveCmd())

	return cmd
}

func newDriveAddCmd() *cobra.Command {
	var (
		kind    string
		current bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a new drive (does not log in — use 'strmgate login')",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			if _, ok := upstreamBaseURLs[kind]; !ok {
				return fmt.Errorf("unsupported drive kind %q", kind)
			}

			id := ids.NewDriveID(kind)

			d, err := app.Drives.Create(cmd.Context(), id, args[0], kind, current)
			if err != nil {
				return fmt.Errorf("creating drive: %w", err)
			}

			app.Pool.Register(d.ID, d.Kind)

			fmt.Fprintf(cmd.OutOrStdout(), "created drive %s (%s)\n", d.ID, d.Name)

			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "115", "upstream kind")
	cmd.Flags().BoolVar(&current, "current", false, "make this the current drive")

	return cmd
}

func newDriveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured drives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := mustApp(cmd.Context())

			drives, err := app.Drives.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing drives: %w", err)
			}

			w := cmd.OutOrStdout()

			for _, d := range drives {
				marker := " "
				if d.IsCurrent {
					marker = "*"
				}

				lastUsed := "never"
				if !d.LastUsedAt.IsZero() {
					lastUsed = humanize.Time(d.LastUsedAt)
				}

				fmt.Fprintf(w, "%s %-24s %-24s %-6s last used %s\n", marker, d.ID, d.Name, d.Kind, lastUsed)
			}

			return nil
		},
	}
}

func newDriveRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm DRIVE_ID",
		Short: "Remove a drive and forget its pooled client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			id, err := ids.ParseDriveID(args[0])
			if err != nil {
				return err
			}

			if err := app.Drives.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("removing drive: %w", err)
			}

			if err := app.Pool.Invalidate(id); err != nil {
				return fmt.Errorf("removing drive credential: %w", err)
			}

			app.Pool.Forget(id)

			fmt.Fprintf(cmd.OutOrStdout(), "removed drive %s\n", id)

			return nil
		},
	}
}

// newDriveResolveCmd resolves a pick handle to a signed, time-limited URL
// through the Redirect Cache (C5) — the operation a stub file's URL points
// at, exercised here since the HTTP redirect route itself is out of scope
// (spec.md §1).
func newDriveResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve DRIVE_ID PICK_HANDLE",
		Short: "Resolve a pick handle to a signed URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			id, err := ids.ParseDriveID(args[0])
			if err != nil {
				return err
			}

			entry, err := app.Pool.Acquire(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("acquiring pool entry: %w", err)
			}

			url, err := app.Redirect.Get(cmd.Context(), entry.Client, id, entry.Credential, args[1])
			if err != nil {
				if errors.Is(err, upstream.ErrUnauthorized) {
					if invErr := app.Pool.Invalidate(id); invErr != nil {
						app.Logger.Warn("drive resolve: invalidating pool entry", "drive_id", id, "error", invErr)
					}
				}

				return fmt.Errorf("resolving %s: %w", args[1], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), url)

			return nil
		},
	}
}
