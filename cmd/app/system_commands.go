package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/recipegraph/cmd/app/commands"
	"github.com/allisson/recipegraph/internal/app"
	"github.com/allisson/recipegraph/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "worker",
			Usage: "Start the projection workers and the operational HTTP server",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "concurrency",
					Aliases: []string{"c"},
					Usage:   "Number of polling loops (defaults to WORKER_CONCURRENCY)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version, int(cmd.Int("concurrency")))
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
		{
			Name:      "project",
			Usage:     "Synchronize the graph with the current state of the given recipes",
			ArgsUsage: "<recipe-id> [recipe-id...]",
			Flags:     []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				outbox, err := container.OutboxUseCase()
				if err != nil {
					return err
				}
				router, err := container.RouterUseCase()
				if err != nil {
					return err
				}

				return commands.RunProject(
					ctx,
					outbox,
					router,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.Args().Slice(),
					cmd.String("format"),
				)
			},
		},
	}
}
