package matcher

import (
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgvision/cardmatch/internal/catalog"
	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/testutil"
)

type fakeHasher struct {
	fp  imagehash.FingerprintSet
	err error
}

func (f fakeHasher) Compute(image.Image) (imagehash.FingerprintSet, error) { return f.fp, f.err }

type entry struct {
	id   string
	word uint64
}

func newCatalog(t *testing.T, entries ...entry) *catalog.Catalog {
	t.Helper()
	records := make([]catalog.Record, len(entries))
	for i, e := range entries {
		records[i] = catalog.Record{ID: e.id, Fingerprints: testutil.PerceptualOnly(t, e.word)}
	}
	c, err := catalog.Open(t.Context(), catalog.NewMemoryBackend(records...), catalog.WithLogger(logger.NewDiscard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newMatcher(t *testing.T, query uint64, entries ...entry) *Matcher {
	t.Helper()
	return New(fakeHasher{fp: testutil.PerceptualOnly(t, query)}, newCatalog(t, entries...), WithLogger(logger.NewDiscard()))
}

// scenario holds records at distance 0, 5 and 12 from a zero query.
func scenario() []entry {
	return []entry{
		{"A", 0},
		{"B", testutil.Ones(5)},
		{"C", testutil.Ones(12)},
	}
}

func TestMatchScenario(t *testing.T) {
	t.Parallel()

	m := newMatcher(t, 0, scenario()...)
	got, err := m.Match(t.Context(), nil, imagehash.Perceptual, 2)
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{"A", 0}, {"B", 5}}, got)
}

func TestMatchLength(t *testing.T) {
	t.Parallel()

	m := newMatcher(t, 0, scenario()...)

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"zero", 0, 0},
		{"negative", -3, 0},
		{"one", 1, 1},
		{"exact", 3, 3},
		{"more than catalog", 50, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := m.Match(t.Context(), nil, imagehash.Perceptual, tt.n)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestMatchEmptyCatalog(t *testing.T) {
	t.Parallel()

	m := newMatcher(t, 0)
	got, err := m.Match(t.Context(), nil, imagehash.Perceptual, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMatchTiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	m := newMatcher(t, 0,
		entry{"far", testutil.Ones(9)},
		entry{"x", testutil.Ones(3)},
		entry{"y", testutil.Ones(3) << 8},
		entry{"z", testutil.Ones(3) << 16},
	)

	got, err := m.Match(t.Context(), nil, imagehash.Perceptual, 2)
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{"x", 3}, {"y", 3}}, got)

	got, err = m.Match(t.Context(), nil, imagehash.Perceptual, 10)
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{"x", 3}, {"y", 3}, {"z", 3}, {"far", 9}}, got)
}

func TestMatchAgreesWithStableSort(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	entries := make([]entry, 300)
	for i := range entries {
		entries[i] = entry{fmt.Sprintf("card-%d", i), testutil.Ones(rng.IntN(40))}
	}
	m := newMatcher(t, 0, entries...)

	want := make([]Candidate, len(entries))
	for i, e := range entries {
		want[i] = Candidate{e.id, testutil.Distance(0, e.word)}
	}
	slices.SortStableFunc(want, func(a, b Candidate) int { return a.Distance - b.Distance })

	for _, n := range []int{1, 7, 64, 299, 300, 1000} {
		got, err := m.Match(t.Context(), nil, imagehash.Perceptual, n)
		require.NoError(t, err)
		assert.Equal(t, want[:min(n, len(want))], got, "n=%d", n)
	}
}

func TestMatchHashTypes(t *testing.T) {
	t.Parallel()

	// Records differ per hash type so each type picks a different winner.
	records := []catalog.Record{
		{ID: "p", Fingerprints: testutil.Fingerprints(t, 0, ^uint64(0), ^uint64(0))},
		{ID: "d", Fingerprints: testutil.Fingerprints(t, ^uint64(0), 0, ^uint64(0))},
		{ID: "w", Fingerprints: testutil.Fingerprints(t, ^uint64(0), ^uint64(0), 0)},
	}
	c, err := catalog.Open(t.Context(), catalog.NewMemoryBackend(records...), catalog.WithLogger(logger.NewDiscard()))
	require.NoError(t, err)
	defer c.Close()

	m := New(fakeHasher{fp: testutil.PerceptualOnly(t, 0)}, c, WithLogger(logger.NewDiscard()))

	tests := []struct {
		hashType imagehash.HashType
		best     string
	}{
		{imagehash.Perceptual, "p"},
		{imagehash.Difference, "d"},
		{imagehash.Wavelet, "w"},
		{imagehash.Color, "p"}, // every color hash is zero, first record wins
	}

	for _, tt := range tests {
		t.Run(string(tt.hashType), func(t *testing.T) {
			t.Parallel()
			got, err := m.Match(t.Context(), nil, tt.hashType, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.best, got[0].ID)
			assert.Zero(t, got[0].Distance)
		})
	}
}

func TestMatchErrors(t *testing.T) {
	t.Parallel()

	t.Run("invalid hash type", func(t *testing.T) {
		t.Parallel()
		m := newMatcher(t, 0, scenario()...)
		_, err := m.Match(t.Context(), nil, imagehash.HashType("average"), 5)
		require.Error(t, err)
		assert.Equal(t, errors.CategoryInvalidHashType, errors.CategoryOf(err))
	})

	t.Run("hasher failure", func(t *testing.T) {
		t.Parallel()
		hashErr := errors.InvalidInput("imagehash", "empty image")
		m := New(fakeHasher{err: hashErr}, newCatalog(t, scenario()...), WithLogger(logger.NewDiscard()))
		_, err := m.Match(t.Context(), nil, imagehash.Perceptual, 5)
		require.ErrorIs(t, err, hashErr)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		t.Parallel()
		query := imagehash.FingerprintSet{Perceptual: imagehash.NewHash(16)}
		m := New(fakeHasher{fp: query}, newCatalog(t, scenario()...), WithLogger(logger.NewDiscard()))
		_, err := m.Match(t.Context(), nil, imagehash.Perceptual, 5)
		require.Error(t, err)
		assert.Equal(t, errors.CategoryHashMismatch, errors.CategoryOf(err))
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		m := newMatcher(t, 0, scenario()...)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := m.Match(ctx, nil, imagehash.Perceptual, 5)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, errors.CategoryCancellation, errors.CategoryOf(err))
	})
}

func TestMatchRealImages(t *testing.T) {
	t.Parallel()

	computer, err := imagehash.NewComputer(testutil.SmallConfig())
	require.NoError(t, err)

	var records []catalog.Record
	for seed := 1; seed <= 6; seed++ {
		fp, err := computer.Compute(testutil.CardImage(seed, 120, 168))
		require.NoError(t, err)
		records = append(records, catalog.Record{ID: fmt.Sprintf("base1-%d", seed), Fingerprints: fp})
	}
	c, err := catalog.Open(t.Context(), catalog.NewMemoryBackend(records...), catalog.WithLogger(logger.NewDiscard()))
	require.NoError(t, err)
	defer c.Close()

	m := New(computer, c, WithLogger(logger.NewDiscard()))
	got, err := m.Match(t.Context(), testutil.CardImage(4, 120, 168), imagehash.Perceptual, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Candidate{"base1-4", 0}, got[0])
	assert.True(t, slices.IsSortedFunc(got, func(a, b Candidate) int { return a.Distance - b.Distance }))
}
