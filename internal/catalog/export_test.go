package catalog

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/testutil"
)

func TestCSVRoundTrip(t *testing.T) {
	t.Parallel()

	want := []Record{record(t, "base1-4", 0xff), record(t, "sv1-25", 0x0f0f)}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, want))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,perceptual,difference,wavelet,color", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "base1-4,00000000000000ff,"), lines[1])

	got, err := ReadCSV(&buf, testutil.SmallShape())
	require.NoError(t, err)
	require.Equal(t, ids(want), ids(got))
	for i := range want {
		assert.True(t, want[i].Fingerprints.Equal(got[i].Fingerprints))
	}
}

func TestExportAndImportCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "catalog.csv")
	want := []Record{record(t, "a", 1), record(t, "b", 2)}
	require.NoError(t, ExportCSV(path, want))

	got, err := ImportCSV(path, testutil.SmallShape())
	require.NoError(t, err)
	assert.Equal(t, ids(want), ids(got))
}

func TestReadCSVErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"wrong header", "card,a,b,c,d\n"},
		{"short row", "id,perceptual,difference,wavelet,color\nx,00\n"},
		{"bad hex", "id,perceptual,difference,wavelet,color\nx,zz,00,00,00\n"},
		{"wrong length", "id,perceptual,difference,wavelet,color\nx,00,00,00,00\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadCSV(strings.NewReader(tt.input), testutil.SmallShape())
			require.Error(t, err)
			assert.Equal(t, errors.CategoryInvalidInput, errors.CategoryOf(err))
		})
	}
}

func TestReadCSVEmpty(t *testing.T) {
	t.Parallel()

	got, err := ReadCSV(strings.NewReader(""), testutil.SmallShape())
	require.NoError(t, err)
	assert.Empty(t, got)
}
