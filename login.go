package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wenfer/strmgate/internal/auth"
	"github.com/wenfer/strmgate/internal/ids"
)

const (
	loginPollInterval = 2 * time.Second
	loginPollTimeout  = 3 * time.Minute
)

// newLoginCmd drives the Auth State Machine (C3) through begin/poll/exchange
// for a single drive, grounded on the teacher's newLoginCmd device-code
// prompt loop (auth.go) but polling QR confirmation instead of a device code.
func newLoginCmd() *cobra.Command {
	var (
		kind    string
		name    string
		current bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a drive via QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := mustApp(cmd.Context())

			machine, err := app.authFor(kind)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			sess, err := machine.Begin(ctx)
			if err != nil {
				return fmt.Errorf("starting login session: %w", err)
			}

			printQR(cmd, sess.QRPayload)

			if err := awaitConfirm(ctx, machine, sess.ID); err != nil {
				return err
			}

			driveID := ids.NewDriveID(kind)
			if name == "" {
				name = driveID.String()
			}

			if _, err := app.Drives.Create(ctx, driveID, name, kind, current); err != nil {
				return fmt.Errorf("registering drive %s: %w", name, err)
			}

			app.Pool.Register(driveID, kind)

			if _, err := machine.Exchange(ctx, sess.ID, driveID); err != nil {
				return fmt.Errorf("exchanging login session: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "logged in: drive %s (%s)\n", driveID, name)

			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "115", "upstream kind")
	cmd.Flags().StringVar(&name, "name", "", "drive name (defaults to the generated id)")
	cmd.Flags().BoolVar(&current, "current", false, "make this the current drive")

	return cmd
}

// printQR renders the QR payload. A real terminal gets it framed for
// legibility; a piped/redirected stdout just gets the raw payload so
// scripts can pipe it into another QR renderer.
func printQR(cmd *cobra.Command, payload string) {
	w := cmd.OutOrStdout()

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(w, payload)
		return
	}

	fmt.Fprintln(w, "Scan this in the upstream's app:")
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, payload)
	fmt.Fprintln(w, "----------------------------------------")
}

// awaitConfirm polls a session until it reaches awaiting_confirm (ready for
// Exchange), fails, or times out (spec.md §4.3 "expired sessions are
// garbage-collected").
func awaitConfirm(ctx context.Context, machine *auth.Machine, sessionID string) error {
	deadline := time.Now().Add(loginPollTimeout)

	for time.Now().Before(deadline) {
		state, err := machine.Poll(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("polling login session: %w", err)
		}

		switch state {
		case auth.StateAwaitingConfirm, auth.StateDone:
			return nil
		case auth.StateFailed:
			return fmt.Errorf("login session failed or expired")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(loginPollInterval):
		}
	}

	return fmt.Errorf("login: timed out waiting for QR confirmation")
}
