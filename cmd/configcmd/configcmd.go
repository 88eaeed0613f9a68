// Package configcmd manages the configuration file.
package configcmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tcgvision/cardmatch/cmd/cmdutil"
	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/errors"
)

// DefaultFileName is written when config init gets no path.
const DefaultFileName = "config.yaml"

// Command creates the config command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(initCommand())
	return cmd
}

func initCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		Annotations: map[string]string{
			cmdutil.AnnotationSkipSetup: "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := DefaultFileName
			if len(args) == 1 {
				path = args[0]
			}
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, DefaultFileName)
			}
			if _, err := os.Stat(path); err == nil {
				if !force {
					return errors.Newf("%s already exists, use --force to overwrite", path).
						Component("cli").
						Category(errors.CategoryConflict).
						Build()
				}
				if err := os.Remove(path); err != nil {
					return errors.FileError(err, path)
				}
			}
			if err := conf.WriteDefaultConfig(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}
