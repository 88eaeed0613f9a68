// Package catalogio moves catalog records to and from the flattened CSV export.
package catalogio

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tcgvision/cardmatch/internal/app"
	"github.com/tcgvision/cardmatch/internal/buildinfo"
	"github.com/tcgvision/cardmatch/internal/catalog"
	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/logger"
)

// ExportCommand creates the export command.
func ExportCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.csv>",
		Short: "Write the catalog as a flattened CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, settings, info, func(a *app.App, c *catalog.Catalog) error {
				records := c.Records()
				if err := catalog.ExportCSV(args[0], records); err != nil {
					return err
				}
				a.Log.Info("catalog exported",
					logger.String("path", args[0]),
					logger.Int("cards", len(records)))
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "exported %d cards to %s\n", len(records), args[0])
				return err
			})
		},
	}
}

// ImportCommand creates the import command. Cards already in the catalog are
// skipped.
func ImportCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Append cards from a flattened CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, settings, info, func(a *app.App, c *catalog.Catalog) error {
				records, err := catalog.ImportCSV(args[0], a.Computer.Shape())
				if err != nil {
					return err
				}
				added, err := c.AddBatch(cmd.Context(), records)
				if err != nil {
					return err
				}
				a.Log.Info("catalog imported",
					logger.String("path", args[0]),
					logger.Int("read", len(records)),
					logger.Int("added", added),
					logger.Int("total_cards", c.Len()))
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d cards, catalog now holds %d\n",
					added, len(records), c.Len())
				return err
			})
		},
	}
}

func withCatalog(cmd *cobra.Command, settings *conf.Settings, info *buildinfo.Context, fn func(*app.App, *catalog.Catalog) error) error {
	log := logger.Global().Module("catalog")
	a, err := app.New(settings, info, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close catalog", logger.Error(err))
		}
	}()

	c, err := a.OpenCatalog(cmd.Context())
	if err != nil {
		return err
	}
	return fn(a, c)
}
