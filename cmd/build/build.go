// Package build runs the catalog builder against the TCGdex card database.
package build

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tcgvision/cardmatch/cmd/cmdutil"
	"github.com/tcgvision/cardmatch/internal/app"
	"github.com/tcgvision/cardmatch/internal/builder"
	"github.com/tcgvision/cardmatch/internal/buildinfo"
	"github.com/tcgvision/cardmatch/internal/catalog"
	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/logger"
)

// Command creates the build command.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build or extend the hash catalog from TCGdex",
		Long: `Walk every TCGdex set newest first, hash each card image not yet in the
catalog and persist the results in batches. An interrupted build keeps every
completed batch; rerun with --start to resume from the reported set index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, settings, info, dryRun)
		},
	}

	cmd.Flags().Int("limit", 0, "Maximum number of cards to process (0 for no limit)")
	cmd.Flags().Int("start", 0, "Index into the date-sorted set list to start from")
	cmd.Flags().Int("batch-size", builder.DefaultBatchSize, "Cards per persisted batch")
	cmd.Flags().String("export", "", "Write the flattened CSV export to this path after the run")
	cmd.Flags().Duration("delay", builder.DefaultDelay, "Minimum spacing between image downloads")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Hash cards without writing to the catalog")
	cmdutil.BindFlags(cmd, map[string]string{
		"limit":      "builder.limit",
		"start":      "builder.start_from",
		"batch-size": "builder.batch_size",
		"export":     "catalog.export_path",
		"delay":      "builder.delay",
	})

	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, settings *conf.Settings, info *buildinfo.Context, dryRun bool) error {
	log := logger.Global().Module("builder")

	a, err := app.New(settings, info, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close catalog", logger.Error(err))
		}
	}()

	client, err := a.TCGdex()
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := a.OpenCatalog(ctx)
	if err != nil {
		return err
	}

	opts := a.BuilderOptions()
	opts.Logger = log
	if dryRun {
		// Work on an in-memory copy so the configured backend is never written.
		mem, err := catalog.Open(ctx, catalog.NewMemoryBackend(store.Records()...),
			catalog.WithShape(store.Shape()))
		if err != nil {
			return err
		}
		defer func() { _ = mem.Close() }()
		store = mem
		opts.ExportPath = ""
		log.Info("dry run, catalog will not be modified")
	}

	b, err := builder.New(client, a.Computer, store, opts)
	if err != nil {
		return err
	}

	report, err := b.Run(ctx)
	if report != nil {
		report.Render(cmd.OutOrStdout())
	}
	return err
}
