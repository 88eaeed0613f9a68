package catalog

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
)

// csvHeader is the column layout of the flattened export.
var csvHeader = []string{"id", "perceptual", "difference", "wavelet", "color"}

// WriteCSV writes records as id plus the hex form of each fingerprint.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		hs := r.Fingerprints.Strings()
		if err := cw.Write([]string{r.ID, hs.Perceptual, hs.Difference, hs.Wavelet, hs.Color}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV atomically replaces path with the flattened export of records.
func ExportCSV(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), catalogDirPermissions); err != nil {
		return errors.FileError(err, path)
	}

	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return errors.FileError(err, path)
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := WriteCSV(bw, records); err != nil {
		return errors.FileError(err, tmpName)
	}
	if err := bw.Flush(); err != nil {
		return errors.FileError(err, tmpName)
	}
	if err := tmp.Chmod(catalogFilePermissions); err != nil {
		return errors.FileError(err, tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.FileError(err, tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.FileError(err, path)
	}
	ok = true
	return nil
}

// ReadCSV parses a flattened export. Every row must have the given shape.
func ReadCSV(r io.Reader, shape imagehash.Shape) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, csvError(err, 1)
	}
	if !slices.Equal(normalizeHeader(header), csvHeader) {
		return nil, errors.Newf("unexpected CSV header %v, want %v", header, csvHeader).
			Component("catalog").
			Category(errors.CategoryInvalidInput).
			Build()
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, csvError(err, line)
		}
		fp, err := imagehash.ParseHashStrings(imagehash.HashStrings{
			Perceptual: row[1],
			Difference: row[2],
			Wavelet:    row[3],
			Color:      row[4],
		}, shape)
		if err != nil {
			return nil, csvError(err, line)
		}
		records = append(records, Record{ID: strings.TrimSpace(row[0]), Fingerprints: fp})
	}
}

// ImportCSV reads a flattened export from path.
func ImportCSV(path string, shape imagehash.Shape) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileError(err, path)
	}
	defer f.Close()
	return ReadCSV(bufio.NewReader(f), shape)
}

func normalizeHeader(h []string) []string {
	out := make([]string, len(h))
	for i, v := range h {
		out[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(v, "\uFEFF")))
	}
	return out
}

func csvError(err error, line int) error {
	return errors.New(err).
		Component("catalog").
		Category(errors.CategoryInvalidInput).
		Context("line", line).
		Build()
}
