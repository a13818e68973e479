package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/vaultd/cmd/app/commands"
	"github.com/allisson/vaultd/internal/app"
	"github.com/allisson/vaultd/internal/config"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "init-master-key",
			Usage: "Generate the master key file if it does not exist",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()

				return commands.RunInitMasterKey(
					commands.DefaultIO().Writer,
					cfg.MasterKeyPath,
				)
			},
		},
		{
			Name:  "generate-secret",
			Usage: "Generate a random secret value and print it to stdout",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "type",
					Aliases: []string{"t"},
					Value:   "api_key",
					Usage:   "Secret type: signing_key, database_password, encryption_key or api_key",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunGenerateSecret(
					commands.DefaultIO().Writer,
					cmd.String("type"),
				)
			},
		},
		{
			Name:  "rotate",
			Usage: "Rotate secrets that are past their rotation deadline",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:    "secret",
					Aliases: []string{"s"},
					Usage:   "Secret name to rotate (repeatable; omit to scan all due secrets)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg, "")
				defer func() { _ = container.Shutdown(ctx) }()

				engine, err := container.RotationEngine()
				if err != nil {
					return err
				}

				return commands.RunRotate(
					engine,
					commands.DefaultIO().Writer,
					cmd.StringSlice("secret"),
				)
			},
		},
	}
}
