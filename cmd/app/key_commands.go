package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/credstore/cmd/app/commands"
	"github.com/allisson/credstore/internal/app"
	"github.com/allisson/credstore/internal/config"
)

func kmsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "kms-provider",
			Required: true,
			Usage:    "KMS provider (localsecrets, gcpkms, awskms, azurekeyvault, hashivault)",
		},
		&cli.StringFlag{
			Name:     "kms-key-uri",
			Required: true,
			Usage:    "KMS key URI (e.g., base64key://, gcpkms://projects/.../cryptoKeys/...)",
		},
	}
}

func kekFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "scope",
			Usage: "Tenant ID the KEK is dedicated to (omit for the global KEK)",
		},
		&cli.StringFlag{
			Name:    "algorithm",
			Aliases: []string{"alg"},
			Value:   "aes-gcm",
			Usage:   "Algorithm used to wrap DEKs (aes-gcm, chacha20-poly1305, xchacha20-poly1305)",
		},
		formatFlag(),
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate a new Master Key for envelope encryption",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Usage:   "Master key ID (e.g., prod-master-key-2025)",
				},
			}, kmsFlags()...),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCreateMasterKey(
					ctx,
					container.KMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
				)
			},
		},
		{
			Name:  "rotate-master-key",
			Usage: "Generate a new Master Key and append it to MASTER_KEYS as the active key",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Usage:   "New master key ID (e.g., prod-master-key-2026)",
				},
			}, kmsFlags()...),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunRotateMasterKey(
					ctx,
					container.KMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
					os.Getenv("MASTER_KEYS"),
					os.Getenv("ACTIVE_MASTER_KEY_ID"),
				)
			},
		},
		{
			Name:  "create-kek",
			Usage: "Create the first Key Encryption Key (KEK) of a scope",
			Flags: kekFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				kekUseCase, err := container.KekUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateKek(
					ctx,
					kekUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("scope"),
					cmd.String("algorithm"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rotate-kek",
			Usage: "Rotate the Key Encryption Key (KEK) of a scope",
			Flags: kekFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				kekUseCase, err := container.KekUseCase()
				if err != nil {
					return err
				}

				return commands.RunRotateKek(
					ctx,
					kekUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("scope"),
					cmd.String("algorithm"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "revoke-kek",
			Usage: "Revoke a deprecated KEK no stored blob references",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "kek-id",
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "KEK ID (UUID)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				kekUseCase, err := container.KekUseCase()
				if err != nil {
					return err
				}

				return commands.RunRevokeKek(
					ctx,
					kekUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("kek-id"),
				)
			},
		},
		{
			Name:  "rewrap-blobs",
			Usage: "Re-wrap stored blobs onto the active KEK of their scope",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "scope",
					Usage: "KEK scope to process (omit for the global scope)",
				},
				&cli.BoolFlag{
					Name:  "all",
					Usage: "Process every scope",
				},
				&cli.IntFlag{
					Name:    "batch-size",
					Aliases: []string{"b"},
					Value:   100,
					Usage:   "Number of blobs to process in each batch",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				if err := container.LoadKeyring(ctx); err != nil {
					return err
				}

				rewrapUseCase, err := container.RewrapUseCase()
				if err != nil {
					return err
				}

				return commands.RunRewrapBlobs(
					ctx,
					rewrapUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("scope"),
					cmd.Bool("all"),
					int(cmd.Int("batch-size")),
				)
			},
		},
	}
}
