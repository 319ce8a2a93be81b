package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wenfer/strmgate/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the persistent flags, bound once in newRootCmd.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

var flags CLIFlags

// skipConfigAnnotation marks commands that build their own App (or none at
// all, e.g. "version"), skipping the automatic config-load-and-wire step in
// PersistentPreRunE.
const skipConfigAnnotation = "skipConfig"

// appContextKey is the context key for *App, built once in PersistentPreRunE
// and threaded to every subcommand's RunE.
type appContextKey struct{}

// appFrom extracts the *App from a command's context, or nil if none was
// wired (commands annotated with skipConfigAnnotation).
func appFrom(ctx context.Context) *App {
	a, _ := ctx.Value(appContextKey{}).(*App)
	return a
}

// mustApp extracts the *App or panics — a programmer error, since every
// RunE reachable without skipConfigAnnotation is guaranteed a populated
// context by PersistentPreRunE.
func mustApp(ctx context.Context) *App {
	a := appFrom(ctx)
	if a == nil {
		panic("BUG: *App not found in context — command tree invariant broken")
	}

	return a
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "strmgate",
		Short:   "Multi-tenant STRM stub sync gateway",
		Long:    "strmgate generates STRM stub files and redirect URLs from cloud storage drives, on a schedule or in response to upstream change events.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return wireApp(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newDriveCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newTaskCmd())
	cmd.AddCommand(newMountCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// wireApp resolves configuration, builds every internal component via
// newApp, and stashes the result in the command's context.
func wireApp(cmd *cobra.Command) error {
	bootstrapLogger := buildLogger(nil, flags)

	path := config.ResolveConfigPath(os.Getenv("STRMGATE_CONFIG"), flags.ConfigPath)

	cfg, err := config.LoadOrDefault(path, bootstrapLogger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(cfg, flags)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wiring application: %w", err)
	}

	cmd.SetContext(context.WithValue(ctx, appContextKey{}, a))

	return nil
}

// buildLogger creates an slog.Logger from config (nil for pre-config
// bootstrap) and CLI flags. Config-file level is the baseline; --verbose,
// --debug and --quiet override it since they're mutually exclusive.
func buildLogger(cfg *config.Config, flags CLIFlags) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(cfg, flags)}

	if cfg != nil && cfg.Logging.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func logLevel(cfg *config.Config, flags CLIFlags) slog.Level {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	switch {
	case flags.Debug:
		level = slog.LevelDebug
	case flags.Verbose:
		level = slog.LevelInfo
	case flags.Quiet:
		level = slog.LevelError
	}

	return level
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
