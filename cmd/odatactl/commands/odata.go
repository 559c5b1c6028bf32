package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/odatactl/internal/app"
)

func metadataCommand() *cli.Command {
	return &cli.Command{
		Name:  "metadata",
		Usage: "Print the types and actions declared by the service",
		Action: appAction(func(ctx context.Context, _ *cli.Command, a *app.App) error {
			return a.Metadata(ctx)
		}),
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "Print the entities of an entity set",
		ArgsUsage: "<entity-set>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Usage: "$filter expression, e.g. \"displayName eq 'Desk'\""},
			&cli.StringSliceFlag{Name: "expand", Usage: "navigation properties to expand"},
			&cli.IntFlag{Name: "top", Usage: "maximum number of entities"},
		},
		Action: appAction(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 1)
			if err != nil {
				return err
			}
			return a.List(ctx, args[0], app.Query{
				Filter: cmd.String("filter"),
				Expand: cmd.StringSlice("expand"),
				Top:    cmd.Int("top"),
			})
		}),
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a single entity",
		ArgsUsage: "<entity-set> <key>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "expand", Usage: "navigation properties to expand"},
		},
		Action: appAction(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 2)
			if err != nil {
				return err
			}
			return a.Get(ctx, args[0], args[1], cmd.StringSlice("expand"))
		}),
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create an entity from a JSON file (- reads stdin)",
		ArgsUsage: "<entity-set> <json-file>",
		Action: appActionWith(promptOnTerminal(1), func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 2)
			if err != nil {
				return err
			}
			body, err := openInput(args[1])
			if err != nil {
				return err
			}
			defer func() { _ = body.Close() }()
			return a.Create(ctx, args[0], body)
		}),
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Patch an entity with the properties of a JSON file (- reads stdin)",
		ArgsUsage: "<entity-set> <key> <json-file>",
		Action: appActionWith(promptOnTerminal(2), func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 3)
			if err != nil {
				return err
			}
			body, err := openInput(args[2])
			if err != nil {
				return err
			}
			defer func() { _ = body.Close() }()
			return a.Update(ctx, args[0], args[1], body)
		}),
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an entity",
		ArgsUsage: "<entity-set> <key>",
		Action: appAction(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			args, err := requireArgs(cmd, 2)
			if err != nil {
				return err
			}
			return a.Delete(ctx, args[0], args[1])
		}),
	}
}

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Read metadata and walk through the items entity set",
		Action: appAction(func(ctx context.Context, _ *cli.Command, a *app.App) error {
			return a.Demo(ctx)
		}),
	}
}

func requireArgs(cmd *cli.Command, n int) ([]string, error) {
	args := cmd.Args().Slice()
	if len(args) != n {
		return nil, fmt.Errorf("%s: expected arguments %s, got %d", cmd.Name, cmd.ArgsUsage, len(args))
	}
	return args, nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening entity file: %w", err)
	}
	return f, nil
}

// openTerminal opens the controlling terminal, independent of redirected stdin.
var openTerminal = func() (*os.File, error) {
	name := "/dev/tty"
	if runtime.GOOS == "windows" {
		name = "CONIN$"
	}
	return os.OpenFile(name, os.O_RDWR, 0)
}

// promptOnTerminal moves the authorization code prompt to the terminal when the
// entity argument at argIndex is "-", since stdin then carries the entity.
func promptOnTerminal(argIndex int) appOptions {
	return func(cmd *cli.Command, cfg *app.Config) ([]app.Option, io.Closer, error) {
		if cmd.Args().Get(argIndex) != "-" || cfg.Auth.CallbackListener {
			return nil, nil, nil
		}
		tty, err := openTerminal()
		if err != nil {
			return nil, nil, fmt.Errorf("entity on stdin needs a terminal for the authorization code, or set auth.callback_listener = true: %w", err)
		}
		return []app.Option{app.WithPromptInput(tty)}, tty, nil
	}
}
