// Package cmdutil holds helpers shared by the cardmatch subcommands.
package cmdutil

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tcgvision/cardmatch/internal/errors"
)

// Annotation keys understood by the root command. They mirror the constants
// exported by package cmd so subcommands do not import their parent.
const (
	AnnotationSkipSetup = "cardmatch/skip-setup"
	AnnotationQuiet     = "cardmatch/quiet"
)

// maxImageBytes bounds images read from disk or stdin.
const maxImageBytes = 32 << 20

// BindFlags binds each named flag to a viper key so settings loaded later
// pick up flags the user set.
func BindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// ReadImage returns the bytes of the named file, or of stdin when path is "-".
func ReadImage(path string, stdin io.Reader) ([]byte, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.New(err).
				Component("cli").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if len(data) > maxImageBytes {
		return nil, errors.Newf("image %s exceeds %d bytes", path, maxImageBytes).
			Component("cli").
			Category(errors.CategoryLimit).
			Build()
	}
	return data, nil
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.New(err).
			Component("cli").
			Category(errors.CategoryGeneric).
			Context("operation", "write_json").
			Build()
	}
	return nil
}
