package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/odatactl/internal/app"
	"github.com/florianilch/odatactl/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	cmd := &cli.Command{
		Name:    "odatactl",
		Usage:   "Browse and edit an OData service behind Azure AD sign-in",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			authCommand(),
			metadataCommand(),
			listCommand(),
			getCommand(),
			createCommand(),
			updateCommand(),
			deleteCommand(),
			demoCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// globalFlags override the matching configuration keys when set.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to the TOML configuration file",
			Value:   app.DefaultConfigFile,
			Sources: cli.EnvVars(app.EnvPrefix + "CONFIG"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug|info|warn|error)",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log format (text|json)",
		},
		&cli.StringFlag{
			Name:  "service-url",
			Usage: "OData service root URL",
		},
		&cli.StringFlag{
			Name:  "company",
			Usage: "company id prefixed to entity set paths",
		},
	}
}

// appFunc is a command body that runs against a ready App.
type appFunc func(context.Context, *cli.Command, *app.App) error

// appOptions derives App options from the command line and configuration.
// The returned closer, if any, is closed after the command ran.
type appOptions func(*cli.Command, *app.Config) ([]app.Option, io.Closer, error)

// appAction loads configuration, installs logging and hands a ready App to action.
func appAction(action appFunc) cli.ActionFunc {
	return appActionWith(nil, action)
}

// appActionWith is appAction with command-specific App options.
func appActionWith(options appOptions, action appFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd, os.Environ)
		if err != nil {
			return err
		}

		logOpts, err := cfg.Log.ObservabilityOptions()
		if err != nil {
			return err
		}
		shutdown, err := observability.Instrument(ctx, logOpts)
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}
		defer func() {
			// Flush exported logs even when ctx was cancelled by a signal.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.ErrorContext(shutdownCtx, "log exporter shutdown failed", "error", err)
			}
		}()

		var appOpts []app.Option
		if options != nil {
			var closer io.Closer
			appOpts, closer, err = options(cmd, cfg)
			if err != nil {
				return err
			}
			if closer != nil {
				defer func() { _ = closer.Close() }()
			}
		}

		application, err := app.New(cfg, appOpts...)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}

		return action(ctx, cmd, application)
	}
}
