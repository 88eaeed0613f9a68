// Package match ranks catalog cards against a query image from the command line.
package match

import (
	"github.com/spf13/cobra"

	"github.com/tcgvision/cardmatch/cmd/cmdutil"
	"github.com/tcgvision/cardmatch/internal/api"
	"github.com/tcgvision/cardmatch/internal/app"
	"github.com/tcgvision/cardmatch/internal/buildinfo"
	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/logger"
)

type options struct {
	hashType  string
	topN      int
	recognize bool
	threshold int
}

// Command creates the match command.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "match <image>",
		Short: "Match an image against the catalog",
		Long: `Print the closest catalog cards for an image as JSON. With --recognize the
best card is resolved to a display name and image URL and rejected when its
distance exceeds --threshold. Use "-" to read the image from stdin.`,
		Args: cobra.ExactArgs(1),
		Annotations: map[string]string{
			cmdutil.AnnotationQuiet: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], settings, info, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.hashType, "type", "t", "", "Hash type: phash, dhash, whash or colorhash (default from config)")
	cmd.Flags().IntVarP(&opts.topN, "top", "n", api.DefaultTopN, "Number of candidates to return")
	cmd.Flags().BoolVarP(&opts.recognize, "recognize", "r", false, "Return the single recognized card")
	cmd.Flags().IntVar(&opts.threshold, "threshold", api.DefaultThreshold, "Maximum accepted distance for --recognize")

	return cmd
}

func run(cmd *cobra.Command, path string, settings *conf.Settings, info *buildinfo.Context, opts options) error {
	data, err := cmdutil.ReadImage(path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	log := logger.Global().Module("matcher")
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

	out := cmd.OutOrStdout()
	if opts.recognize {
		var threshold *int
		if cmd.Flags().Changed("threshold") {
			threshold = &opts.threshold
		}
		result, err := service.Recognize(ctx, data, opts.hashType, threshold)
		if err != nil {
			return err
		}
		return cmdutil.WriteJSON(out, result)
	}

	var topN *int
	if cmd.Flags().Changed("top") {
		topN = &opts.topN
	}
	result, err := service.Match(ctx, data, opts.hashType, topN)
	if err != nil {
		return err
	}
	return cmdutil.WriteJSON(out, result)
}
