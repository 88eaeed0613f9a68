package catalog

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/testutil"
)

func record(t *testing.T, id string, p uint64) Record {
	t.Helper()
	return Record{ID: id, Fingerprints: testutil.PerceptualOnly(t, p)}
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func openMemory(t *testing.T, backend *MemoryBackend, opts ...Option) *Catalog {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewDiscard())}, opts...)
	c, err := Open(t.Context(), backend, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenLoadsInOrder(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend(record(t, "b", 2), record(t, "a", 1))
	c := openMemory(t, backend)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"b", "a"}, ids(c.Records()))
	assert.Equal(t, testutil.SmallShape(), c.Shape())
	assert.Equal(t, "memory", c.Backend())

	rec, ok := c.Get("a")
	require.True(t, ok)
	assert.True(t, rec.Fingerprints.Equal(testutil.PerceptualOnly(t, 1)))
}

func TestOpenRejectsInvalidStore(t *testing.T) {
	t.Parallel()

	other := Record{ID: "x", Fingerprints: imagehash.FingerprintSet{Perceptual: imagehash.NewHash(8)}}

	tests := []struct {
		name     string
		records  []Record
		category errors.ErrorCategory
	}{
		{"duplicate id", []Record{record(t, "a", 1), record(t, "a", 2)}, errors.CategoryValidation},
		{"empty id", []Record{record(t, " ", 1)}, errors.CategoryValidation},
		{"mixed shapes", []Record{record(t, "a", 1), other}, errors.CategoryHashMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Open(t.Context(), NewMemoryBackend(tt.records...), WithLogger(logger.NewDiscard()))
			require.Error(t, err)
			assert.Equal(t, tt.category, errors.CategoryOf(err))
		})
	}
}

func TestAdd(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	c := openMemory(t, backend)

	require.NoError(t, c.Add(t.Context(), record(t, " base1-4 ", 7)))
	assert.True(t, c.Has("base1-4"), "id is trimmed")
	assert.Equal(t, testutil.SmallShape(), c.Shape(), "first write fixes the shape")
	assert.Equal(t, 1, backend.Saves())

	err := c.Add(t.Context(), record(t, "base1-4", 8))
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, 1, c.Len(), "conflict must not duplicate")
	assert.Equal(t, 1, backend.Saves())

	rec, _ := c.Get("base1-4")
	assert.True(t, rec.Fingerprints.Equal(testutil.PerceptualOnly(t, 7)), "original record kept")
}

func TestAddValidation(t *testing.T) {
	t.Parallel()

	c := openMemory(t, NewMemoryBackend(), WithShape(testutil.SmallShape()))

	err := c.Add(t.Context(), record(t, "", 1))
	assert.Equal(t, errors.CategoryInvalidInput, errors.CategoryOf(err))

	wrong := Record{ID: "x", Fingerprints: imagehash.FingerprintSet{Perceptual: imagehash.NewHash(16)}}
	err = c.Add(t.Context(), wrong)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryInvalidInput, errors.CategoryOf(err))
	assert.Zero(t, c.Len())
}

func TestAddBatch(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend(record(t, "a", 1))
	c := openMemory(t, backend)

	added, err := c.AddBatch(t.Context(), []Record{
		record(t, "a", 9),
		record(t, "b", 2),
		record(t, "c", 3),
		record(t, "b", 4),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"a", "b", "c"}, ids(c.Records()))
	assert.Equal(t, 1, backend.Saves(), "one persist per batch")
	assert.Equal(t, []string{"a", "b", "c"}, ids(backend.Stored()))

	rec, _ := c.Get("b")
	assert.True(t, rec.Fingerprints.Equal(testutil.PerceptualOnly(t, 2)), "first occurrence wins")

	added, err = c.AddBatch(t.Context(), []Record{record(t, "a", 1)})
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, 1, backend.Saves(), "nothing new, nothing persisted")
}

func TestWritesAreAllOrNothing(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend(record(t, "a", 1))
	c := openMemory(t, backend)
	backend.FailSaves(errors.NewStd("disk full"))

	require.Error(t, c.Add(t.Context(), record(t, "b", 2)))
	_, err := c.AddBatch(t.Context(), []Record{record(t, "c", 3), record(t, "d", 4)})
	require.Error(t, err)
	require.Error(t, c.Remove(t.Context(), "a"))

	assert.Equal(t, []string{"a"}, ids(c.Records()))
	assert.Equal(t, []string{"a"}, ids(backend.Stored()))

	backend.FailSaves(nil)
	require.NoError(t, c.Add(t.Context(), record(t, "b", 2)))
	assert.Equal(t, []string{"a", "b"}, ids(backend.Stored()))
}

func TestFailedFirstWriteLeavesShapeOpen(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	c := openMemory(t, backend)
	backend.FailSaves(errors.NewStd("offline"))

	require.Error(t, c.Add(t.Context(), record(t, "a", 1)))
	assert.Equal(t, imagehash.Shape{}, c.Shape())
}

func TestAddBatchRejectsMixedShapes(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	c := openMemory(t, backend)

	wrong := Record{ID: "x", Fingerprints: imagehash.FingerprintSet{Perceptual: imagehash.NewHash(16)}}
	_, err := c.AddBatch(t.Context(), []Record{record(t, "a", 1), wrong})
	require.Error(t, err)
	assert.Zero(t, c.Len())
	assert.Zero(t, backend.Saves())
}

func TestRemove(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend(record(t, "a", 1), record(t, "b", 2), record(t, "c", 3))
	c := openMemory(t, backend)

	require.NoError(t, c.Remove(t.Context(), "b"))
	assert.Equal(t, []string{"a", "c"}, ids(c.Records()))
	assert.False(t, c.Has("b"))

	err := c.Remove(t.Context(), "b")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestClosedCatalogRejectsWrites(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend(record(t, "a", 1))
	c, err := Open(t.Context(), backend, WithLogger(logger.NewDiscard()))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Error(t, c.Add(t.Context(), record(t, "b", 2)))
	assert.True(t, c.Has("a"), "snapshot stays readable")
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	c := openMemory(t, NewMemoryBackend())
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.ErrorIs(t, c.Add(ctx, record(t, "a", 1)), context.Canceled)
	assert.Zero(t, c.Len())
}

func TestSnapshotIsStable(t *testing.T) {
	t.Parallel()

	c := openMemory(t, NewMemoryBackend(record(t, "a", 1)))
	snap := c.Snapshot()

	require.NoError(t, c.Add(t.Context(), record(t, "b", 2)))
	assert.Equal(t, 1, snap.Len(), "old snapshot unchanged")
	assert.Equal(t, 2, c.Snapshot().Len())

	var seen []string
	c.Scan(func(_ int, r Record) bool {
		seen = append(seen, r.ID)
		return false
	})
	assert.Equal(t, []string{"a"}, seen, "scan stops when fn returns false")
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	t.Parallel()

	c := openMemory(t, NewMemoryBackend())

	const writers, perWriter = 4, 25
	batches := make([][]Record, writers)
	for w := range writers {
		for i := range perWriter {
			batches[w] = append(batches[w], record(t, fmt.Sprintf("w%d-%d", w, i), uint64(i)))
		}
	}

	var wg sync.WaitGroup
	for _, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, rec := range batch {
				assert.NoError(t, c.Add(context.Background(), rec))
			}
		}()
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				snap := c.Snapshot()
				n := 0
				snap.Scan(func(int, Record) bool { n++; return true })
				assert.Equal(t, snap.Len(), n)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, c.Len())
}
