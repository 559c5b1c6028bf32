package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/odatactl/internal/app"
	"github.com/florianilch/odatactl/internal/tokensource"
)

// authCommand returns the 'auth' subcommand for signing in and managing the client secret.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authorization",
		Commands: []*cli.Command{
			authLoginCommand(),
			authSecretCommand(),
		},
	}
}

// authLoginCommand returns the 'auth login' subcommand.
func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Run the interactive sign-in and verify the client registration",
		Action: appAction(func(ctx context.Context, _ *cli.Command, a *app.App) error {
			return a.Login(ctx)
		}),
	}
}

// authSecretCommand returns the 'auth secret' subcommand.
func authSecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage the client secret in the OS keyring",
		Commands: []*cli.Command{
			{
				Name:   "set",
				Usage:  "Store the client secret for the configured client id",
				Action: authSecretSetAction,
			},
			{
				Name:   "delete",
				Usage:  "Remove the stored client secret",
				Action: authSecretDeleteAction,
			},
		},
	}
}

func authSecretSetAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reader := &tokensource.ConsoleReader{Out: os.Stderr, Prompt: "Enter client secret: "}
	secret, err := reader.ReadCode(ctx)
	if err != nil {
		return err
	}
	if secret == "" {
		return errors.New("client secret cannot be empty")
	}

	if err := app.StoreClientSecret(cfg.Auth.ClientID, secret); err != nil {
		return fmt.Errorf("failed to store client secret: %w", err)
	}

	fmt.Printf("Client secret for %s saved to keyring\n", cfg.Auth.ClientID)
	if !cfg.Auth.ClientSecretKeyring {
		fmt.Println("Set client_secret_keyring = true in [auth] to use it")
	}
	return nil
}

func authSecretDeleteAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := app.StoreClientSecret(cfg.Auth.ClientID, ""); err != nil {
		return fmt.Errorf("failed to delete client secret: %w", err)
	}

	fmt.Printf("Client secret for %s removed from keyring\n", cfg.Auth.ClientID)
	return nil
}
