package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/credstore/cmd/app/commands"
	"github.com/allisson/credstore/internal/app"
	"github.com/allisson/credstore/internal/config"
)

func secretTypeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "id",
			Aliases:  []string{"i"},
			Required: true,
			Usage:    "Secret type ID (e.g., db-credentials)",
		},
		&cli.StringFlag{
			Name:    "name",
			Aliases: []string{"n"},
			Usage:   "Human-readable name",
		},
		&cli.StringFlag{
			Name:  "schema",
			Usage: "JSON Schema for version parameters, inline or @path/to/schema.json",
		},
		&cli.BoolFlag{
			Name:  "versioning",
			Value: true,
			Usage: "Keep version history (false replaces the single version in place)",
		},
		&cli.IntFlag{
			Name:  "max-versions",
			Usage: "Maximum retained versions per secret (0 means unlimited)",
		},
		&cli.IntFlag{
			Name:  "retention-days",
			Usage: "Drop non-current versions older than this many days (0 keeps them)",
		},
		&cli.BoolFlag{
			Name:  "encryption-required",
			Usage: "Only store on backends that encrypt at rest",
		},
		formatFlag(),
	}
}

func secretTypeInput(cmd *cli.Command) commands.SecretTypeInput {
	return commands.SecretTypeInput{
		ID:                 cmd.String("id"),
		Name:               cmd.String("name"),
		Schema:             cmd.String("schema"),
		Versioning:         cmd.Bool("versioning"),
		MaxVersions:        int(cmd.Int("max-versions")),
		RetentionDays:      int(cmd.Int("retention-days")),
		EncryptionRequired: cmd.Bool("encryption-required"),
	}
}

func getTenantCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-secret-type",
			Usage: "Register a secret type",
			Flags: secretTypeFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				secretTypeUseCase, err := container.SecretTypeUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateSecretType(
					ctx,
					secretTypeUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					secretTypeInput(cmd),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "update-secret-type",
			Usage: "Replace the definition of a secret type",
			Flags: secretTypeFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				secretTypeUseCase, err := container.SecretTypeUseCase()
				if err != nil {
					return err
				}

				return commands.RunUpdateSecretType(
					ctx,
					secretTypeUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					secretTypeInput(cmd),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "list-secret-types",
			Usage: "List registered secret types",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "offset", Usage: "Number of secret types to skip"},
				&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum number of secret types to list"},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				secretTypeUseCase, err := container.SecretTypeUseCase()
				if err != nil {
					return err
				}

				return commands.RunListSecretTypes(
					ctx,
					secretTypeUseCase,
					commands.DefaultIO().Writer,
					int(cmd.Int("offset")),
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "set-tenant-quota",
			Usage: "Set explicit limits for a tenant",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Required: true, Usage: "Tenant ID"},
				&cli.IntFlag{Name: "max-secrets", Value: 1000, Usage: "Maximum live secrets (0 means unlimited)"},
				&cli.IntFlag{Name: "max-payload-bytes", Value: 65536, Usage: "Maximum payload size (0 means unlimited)"},
				&cli.IntFlag{Name: "max-versions", Value: 10, Usage: "Maximum retained versions per secret (0 means unlimited)"},
				&cli.FloatFlag{Name: "requests-per-second", Value: 50, Usage: "Sustained request rate"},
				&cli.IntFlag{Name: "burst", Value: 100, Usage: "Request burst size"},
				&cli.IntFlag{Name: "audit-retention-days", Usage: "Audit retention (0 uses the server default)"},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				quotaUseCase, err := container.QuotaUseCase()
				if err != nil {
					return err
				}

				return commands.RunSetTenantQuota(
					ctx,
					quotaUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					commands.TenantQuotaInput{
						TenantID:           cmd.String("tenant"),
						MaxSecrets:         int(cmd.Int("max-secrets")),
						MaxPayloadBytes:    int(cmd.Int("max-payload-bytes")),
						MaxVersions:        int(cmd.Int("max-versions")),
						RequestsPerSecond:  cmd.Float("requests-per-second"),
						Burst:              int(cmd.Int("burst")),
						AuditRetentionDays: int(cmd.Int("audit-retention-days")),
					},
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "get-tenant-quota",
			Usage: "Show the effective limits and usage of a tenant",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Required: true, Usage: "Tenant ID"},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				quotaUseCase, err := container.QuotaUseCase()
				if err != nil {
					return err
				}

				return commands.RunGetTenantQuota(
					ctx,
					quotaUseCase,
					commands.DefaultIO().Writer,
					cmd.String("tenant"),
					cmd.String("format"),
				)
			},
		},
	}
}
