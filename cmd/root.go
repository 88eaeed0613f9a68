// Package cmd assembles the cardmatch command line.
package cmd

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tcgvision/cardmatch/cmd/build"
	"github.com/tcgvision/cardmatch/cmd/catalogio"
	"github.com/tcgvision/cardmatch/cmd/cmdutil"
	"github.com/tcgvision/cardmatch/cmd/configcmd"
	"github.com/tcgvision/cardmatch/cmd/hash"
	"github.com/tcgvision/cardmatch/cmd/match"
	"github.com/tcgvision/cardmatch/cmd/serve"
	"github.com/tcgvision/cardmatch/internal/buildinfo"
	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates the root command. settings is filled by the setup hook
// before any subcommand runs.
func RootCommand(info *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string
	var central *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:           "cardmatch",
		Short:         "Trading card recognition by perceptual image hashing",
		Long:          "cardmatch identifies trading cards from photos by comparing image fingerprints against a catalog built from the TCGdex card database.",
		Version:       info.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(info.String() + "\n")

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/cardmatch, /etc/cardmatch)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(
		serve.Command(settings, info),
		build.Command(settings, info),
		hash.Command(settings),
		match.Command(settings, info),
		catalogio.ExportCommand(settings, info),
		catalogio.ImportCommand(settings, info),
		configcmd.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[cmdutil.AnnotationSkipSetup] == "true" {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		if cmd.Annotations[cmdutil.AnnotationQuiet] == "true" && !settings.Debug && settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelWarn)
		}
		central, err = logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return errors.New(err).
				Component("main").
				Category(errors.CategoryConfiguration).
				Context("operation", "init_logging").
				Build()
		}
		logger.SetGlobal(central)

		if err := errors.InitSentry(settings.Telemetry.SentryDSN, info.Version(), settings.Telemetry.Environment); err != nil {
			central.Module("main").Warn("telemetry disabled", logger.Error(err))
		}

		log := central.Module("main")
		if settings.ConfigFile != "" {
			log.Debug("configuration loaded", logger.String("path", settings.ConfigFile))
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Telemetry.SentryDSN != "" {
			sentry.Flush(sentryFlushTimeout)
		}
		if central != nil {
			return central.Close()
		}
		return nil
	}

	return rootCmd
}
