package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/testutil"
)

func TestSQLiteBackendRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.db")
	shape := testutil.SmallShape()

	sb, err := NewSQLiteBackend(path, shape, logger.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, conf.DriverSQLite, sb.Name())

	empty, err := sb.Load(t.Context())
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := []Record{record(t, "b", 2), record(t, "a", 1)}
	require.NoError(t, sb.Save(t.Context(), first))

	// A second save replaces the table.
	want := append(first, record(t, "c", 0xdeadbeef))
	require.NoError(t, sb.Save(t.Context(), want))
	require.NoError(t, sb.Close())

	sb, err = NewSQLiteBackend(path, shape, logger.NewDiscard())
	require.NoError(t, err)
	defer sb.Close()

	got, err := sb.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, ids(got))
	for i := range want {
		assert.True(t, want[i].Fingerprints.Equal(got[i].Fingerprints), want[i].ID)
	}
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	fb, err := NewBackend(conf.CatalogSettings{Driver: conf.DriverFile, Path: filepath.Join(dir, "c.gob")}, testutil.SmallShape(), logger.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, "file", fb.Name())
	require.NoError(t, fb.Close())

	sb, err := NewBackend(conf.CatalogSettings{Driver: conf.DriverSQLite, SQLitePath: filepath.Join(dir, "c.db")}, testutil.SmallShape(), logger.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, conf.DriverSQLite, sb.Name())
	require.NoError(t, sb.Close())

	_, err = NewBackend(conf.CatalogSettings{Driver: "redis"}, testutil.SmallShape(), logger.NewDiscard())
	assert.Error(t, err)
}
