// Package main is the offline index maintenance tool. The embedded search
// indexes have a single writer, so run it while the server is stopped.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/AksahyDwivedi/pharmacy/internal/app"
	"github.com/AksahyDwivedi/pharmacy/internal/config"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/indexing"
	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "reindex",
		Usage: "Rebuild or repair the pharmacy search indexes from the primary store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "reindex",
				Usage:  "Rebuild indexes from the primary store and drop orphan documents",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "entity",
						Aliases: []string{"e"},
						Usage:   "Entity to rebuild, repeatable (default: all)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Rows read per page (default: REINDEX_BATCH_SIZE)",
					},
				},
			},
			{
				Name:   "repair",
				Usage:  "Replay the journaled mirror failures",
				Action: repairCommand,
			},
		},
	}
}

// session opens the infrastructure and registers every entity with a
// reconciler. Writes are not mirrored: the tool only touches indexes through
// the reconciler.
func session(c *cli.Context) (*indexing.Reconciler, *app.Infra, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if size := c.Int("batch-size"); size > 0 {
		cfg.Reconcile.BatchSize = size
	}

	log, err := logger.New(logger.Config{
		Level:       c.String("log-level"),
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize logger: %w", err)
	}

	infra, err := app.Open(c.Context, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	modules, err := app.BuildModules(app.NewRegistry(), infra.Deps(nil))
	if err != nil {
		_ = infra.Close()
		return nil, nil, nil, err
	}

	reconciler := indexing.NewReconciler(indexing.ReconcilerConfig{
		Workers:   cfg.Reconcile.Workers,
		BatchSize: cfg.Reconcile.BatchSize,
	}, infra.Journal, log)
	app.RegisterTargets(reconciler, modules)
	return reconciler, infra, log, nil
}

func reindexCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler, infra, log, err := session(c)
	if err != nil {
		return err
	}
	defer infra.Close()

	stats, err := reconciler.Reindex(ctx, c.StringSlice("entity")...)
	for _, s := range stats {
		fmt.Printf("%-20s indexed=%d orphans=%d resynced=%d failures=%d\n", s.Entity, s.Indexed, s.Orphans, s.Resynced, s.Failures)
	}
	if err != nil {
		return err
	}
	log.Infow("reindex complete", "entities", len(stats))
	return nil
}

func repairCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler, infra, log, err := session(c)
	if err != nil {
		return err
	}
	defer infra.Close()

	stats, err := reconciler.Repair(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pending=%d repaired=%d failed=%d skipped=%d\n",
		stats.Pending, stats.Repaired, stats.Failed, stats.Skipped)
	log.Infow("repair complete")
	return nil
}
