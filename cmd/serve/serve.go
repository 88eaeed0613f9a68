// Package serve runs the HTTP matching service.
package serve

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tcgvision/cardmatch/cmd/cmdutil"
	"github.com/tcgvision/cardmatch/internal/api"
	"github.com/tcgvision/cardmatch/internal/app"
	"github.com/tcgvision/cardmatch/internal/buildinfo"
	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/logger"
)

// Command creates the serve command.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP matching service",
		Long:  "Load the catalog and serve the match, recognize and catalog endpoints until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, info)
		},
	}

	cmd.Flags().String("host", "", "Address to bind")
	cmd.Flags().IntP("port", "p", api.DefaultPort, "Port to listen on")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")
	cmdutil.BindFlags(cmd, map[string]string{
		"host":    "server.host",
		"port":    "server.port",
		"metrics": "server.metrics",
	})

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, info *buildinfo.Context) error {
	log := logger.Global().Module("main")
	log.Info("starting cardmatch", logger.String("version", info.Version()))

	a, err := app.New(settings, info, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close catalog", logger.Error(err))
		}
	}()

	ctx := cmd.Context()
	service, err := a.Service(ctx)
	if err != nil {
		return err
	}

	server, err := api.New(api.ConfigFromSettings(settings), service,
		api.WithLogger(logger.Global().Module("api")),
		api.WithMetrics(a.Metrics))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	return g.Wait()
}
