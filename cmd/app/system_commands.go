package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/vaultd/cmd/app/commands"
	"github.com/allisson/vaultd/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the vault HTTP server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "verify-audit-log",
			Usage: "Verify cryptographic integrity of the audit log",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()

				return commands.RunVerifyAuditLog(
					commands.DefaultIO().Writer,
					cfg.AuditLogPath,
					cmd.String("format"),
				)
			},
		},
	}
}
