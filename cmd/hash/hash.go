// Package hash prints the fingerprints of a single image.
package hash

import (
	"github.com/spf13/cobra"

	"github.com/tcgvision/cardmatch/cmd/cmdutil"
	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/imagehash"
)

// Command creates the hash command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <image>",
		Short: "Print the four fingerprints of an image as JSON",
		Long:  `Compute the perceptual, difference, wavelet and color hashes of an image file. Use "-" to read from stdin.`,
		Args:  cobra.ExactArgs(1),
		Annotations: map[string]string{
			cmdutil.AnnotationQuiet: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := cmdutil.ReadImage(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			computer, err := imagehash.NewComputer(imagehash.ConfigFromSettings(settings.Hash))
			if err != nil {
				return err
			}
			set, err := computer.ComputeBytes(data)
			if err != nil {
				return err
			}
			return cmdutil.WriteJSON(cmd.OutOrStdout(), set.Strings())
		},
	}
}
