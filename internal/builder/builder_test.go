package builder

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgvision/cardmatch/internal/catalog"
	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/observability"
	"github.com/tcgvision/cardmatch/internal/tcgdex"
	"github.com/tcgvision/cardmatch/internal/testutil"
)

const corruptImage = "corrupt"

// fakeLister serves sets and cards from memory. Image bytes are the card id,
// so the fake hasher can derive a distinct fingerprint per card.
type fakeLister struct {
	mu       sync.Mutex
	sets     []tcgdex.SetSummary
	cards    map[string][]tcgdex.CardSummary
	setErrs  map[string]error
	imgErrs  map[string]error
	fetches  atomic.Int64
	onFetch  func(n int64)
	listings []string
}

func newLister() *fakeLister {
	return &fakeLister{
		cards:   make(map[string][]tcgdex.CardSummary),
		setErrs: make(map[string]error),
		imgErrs: make(map[string]error),
	}
}

// addSet registers a set with n cards named <id>-1 .. <id>-n.
func (f *fakeLister) addSet(id string, released time.Time, n int) {
	f.sets = append(f.sets, tcgdex.SetSummary{ID: id, Name: strings.ToUpper(id), ReleaseDate: released, CardCount: n})
	for i := 1; i <= n; i++ {
		cardID := fmt.Sprintf("%s-%d", id, i)
		f.cards[id] = append(f.cards[id], tcgdex.CardSummary{
			ID:       cardID,
			LocalID:  fmt.Sprint(i),
			SetID:    id,
			ImageURL: "img://" + cardID,
		})
	}
}

func (f *fakeLister) ListSets(context.Context) ([]tcgdex.SetSummary, error) {
	return append([]tcgdex.SetSummary(nil), f.sets...), nil
}

func (f *fakeLister) ListCards(_ context.Context, setID string) ([]tcgdex.CardSummary, error) {
	f.mu.Lock()
	f.listings = append(f.listings, setID)
	f.mu.Unlock()
	if err := f.setErrs[setID]; err != nil {
		return nil, err
	}
	return f.cards[setID], nil
}

func (f *fakeLister) FetchImage(ctx context.Context, url string) ([]byte, error) {
	n := f.fetches.Add(1)
	if f.onFetch != nil {
		f.onFetch(n)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.imgErrs[url]; err != nil {
		return nil, err
	}
	return []byte(strings.TrimPrefix(url, "img://")), nil
}

func (f *fakeLister) listed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listings...)
}

type fakeHasher struct{ t testing.TB }

func (h fakeHasher) ComputeBytes(data []byte) (imagehash.FingerprintSet, error) {
	if string(data) == corruptImage {
		return imagehash.FingerprintSet{}, errors.NewStd("image: unknown format")
	}
	sum := fnv.New64a()
	_, _ = sum.Write(data)
	return testutil.PerceptualOnly(h.t, sum.Sum64()), nil
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func date(y int, m time.Month) time.Time { return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC) }

func openStore(t *testing.T, backend *catalog.MemoryBackend) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(t.Context(), backend,
		catalog.WithShape(testutil.SmallShape()),
		catalog.WithLogger(logger.NewDiscard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newBuilder(t *testing.T, lister Lister, store Store, opts Options) *Builder {
	t.Helper()
	opts.Throttle = NewRateThrottle(0)
	opts.Logger = logger.NewDiscard()
	if opts.Clock == nil {
		opts.Clock = &stepClock{now: date(2026, time.January)}
	}
	b, err := New(lister, fakeHasher{t: t}, store, opts)
	require.NoError(t, err)
	return b
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	store := openStore(t, catalog.NewMemoryBackend())

	_, err := New(newLister(), fakeHasher{t: t}, store, Options{StartFrom: -1})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidInput))

	_, err = New(newLister(), fakeHasher{t: t}, store, Options{Limit: -1})
	require.Error(t, err)

	b, err := New(newLister(), fakeHasher{t: t}, store, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, b.opts.BatchSize)
	assert.Equal(t, DefaultFetchTimeout, b.opts.FetchTimeout)
}

func TestRunAddsEveryCard(t *testing.T) {
	t.Parallel()

	lister := newLister()
	lister.addSet("base1", date(1999, time.January), 4)
	lister.addSet("sv1", date(2023, time.March), 3)

	backend := catalog.NewMemoryBackend()
	store := openStore(t, backend)
	b := newBuilder(t, lister, store, Options{BatchSize: 2})

	report, err := b.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(7), report.Processed)
	assert.Equal(t, int64(7), report.Added)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 7, report.CatalogSize)
	assert.Equal(t, 2, report.TotalSets)
	assert.Equal(t, 2, report.SetsVisited)
	assert.Equal(t, 2, report.NextSetIndex)
	assert.False(t, report.Interrupted)
	assert.NotEmpty(t, report.RunID)
	assert.Positive(t, report.Duration)

	// Newest set first.
	assert.Equal(t, []string{"sv1", "base1"}, lister.listed())
	assert.Equal(t, "sv1-1", store.Records()[0].ID)

	// Three full batches plus the final partial one.
	assert.Equal(t, 4, backend.Saves())
	assert.Len(t, backend.Stored(), 7)
	assert.Equal(t, Progress{Processed: 7, Added: 7}, b.Progress())
}

func TestRunSkipsPresentCards(t *testing.T) {
	t.Parallel()

	lister := newLister()
	lister.addSet("base1", date(1999, time.January), 5)

	backend := catalog.NewMemoryBackend()
	store := openStore(t, backend)

	_, err := newBuilder(t, lister, store, Options{}).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(5), lister.fetches.Load())

	report, err := newBuilder(t, lister, store, Options{}).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(5), report.Processed)
	assert.Equal(t, int64(5), report.Skipped)
	assert.Zero(t, report.Added)
	assert.Equal(t, 5, report.CatalogSize)
	assert.Equal(t, int64(5), lister.fetches.Load(), "present cards are never fetched")
	assert.Equal(t, 1, backend.Saves(), "nothing new means nothing to save")
}

func TestInterruptPersistsPendingBatch(t *testing.T) {
	t.Parallel()

	lister := newLister()
	lister.addSet("sv2", date(2023, time.June), 50)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	lister.onFetch = func(n int64) {
		if n == 4 {
			cancel()
		}
	}

	backend := catalog.NewMemoryBackend()
	store := openStore(t, backend)
	b := newBuilder(t, lister, store, Options{BatchSize: 50})

	report, err := b.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, report.Interrupted)
	assert.Equal(t, int64(3), report.Added)
	assert.Equal(t, int64(3), report.Processed, "the interrupted card is not counted")
	assert.Equal(t, 0, report.NextSetIndex, "the set was not finished")
	assert.Len(t, backend.Stored(), 3)
	assert.Equal(t, []string{"sv2-1", "sv2-2", "sv2-3"}, ids(backend.Stored()))

	// Resume against the persisted state.
	lister.onFetch = nil
	rerun := newBuilder(t, lister, openStore(t, catalog.NewMemoryBackend(backend.Stored()...)), Options{BatchSize: 50})
	report, err = rerun.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Skipped)
	assert.Equal(t, int64(47), report.Added)
	assert.Equal(t, 50, report.CatalogSize)
}

func TestRunLimit(t *testing.T) {
	t.Parallel()

	lister := newLister()
	lister.addSet("sv1", date(2023, time.March), 4)
	lister.addSet("sv2", date(2023, time.June), 4)

	store := openStore(t, catalog.NewMemoryBackend())
	report, err := newBuilder(t, lister, store, Options{Limit: 6}).Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(6), report.Processed)
	assert.Equal(t, int64(6), report.Added)
	assert.Equal(t, 6, store.Len())
	assert.Equal(t, int64(6), lister.fetches.Load())
}

func TestRunStartFrom(t *testing.T) {
	t.Parallel()

	lister := newLister()
	lister.addSet("base1", date(1999, time.January), 2)
	lister.addSet("sv1", date(2023, time.March), 2)
	lister.addSet("xy1", date(2014, time.February), 2)

	store := openStore(t, catalog.NewMemoryBackend())
	report, err := newBuilder(t, lister, store, Options{StartFrom: 1}).Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"xy1", "base1"}, lister.listed())
	assert.Equal(t, 2, report.SetsVisited)
	assert.Equal(t, 3, report.NextSetIndex)
	assert.Equal(t, 4, store.Len())
}

func TestRunRecordsFailures(t *testing.T) {
	t.Parallel()

	lister := newLister()
	lister.addSet("sv1", date(2023, time.March), 5)
	lister.addSet("broken", date(2022, time.January), 2)
	lister.setErrs["broken"] = errors.NewStd("upstream 502")

	lister.cards["sv1"][0].ImageURL = ""
	lister.cards["sv1"][1].ImageURL = "img://" + corruptImage
	lister.imgErrs["img://sv1-3"] = errors.NewStd("connection reset")
	lister.imgErrs["img://sv1-4"] = errors.New(context.DeadlineExceeded).
		Category(errors.CategoryTimeout).
		Build()

	om, err := observability.NewMetrics()
	require.NoError(t, err)

	store := openStore(t, catalog.NewMemoryBackend())
	report, err := newBuilder(t, lister, store, Options{Metrics: om.Builder}).Run(t.Context())
	require.NoError(t, err, "per-card failures do not fail the run")

	assert.Equal(t, int64(1), report.Added)
	assert.Equal(t, int64(5), report.Failed)
	assert.Equal(t, 1, report.SetsVisited)
	assert.Equal(t, 2, report.NextSetIndex, "a set that failed to list is passed over")
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Has("sv1-5"))

	reasons := make(map[string]string, len(report.Failures))
	for _, f := range report.Failures {
		key := f.CardID
		if key == "" {
			key = "set:" + f.SetID
		}
		reasons[key] = f.Reason
	}
	assert.Equal(t, map[string]string{
		"sv1-1":      ReasonNoImage,
		"sv1-2":      ReasonDecode,
		"sv1-3":      ReasonFetch,
		"sv1-4":      ReasonTimeout,
		"set:broken": ReasonSetListing,
	}, reasons)

	assert.InDelta(t, 1, promtest.ToFloat64(om.Builder.Failures.WithLabelValues(ReasonDecode)), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(om.Builder.Cards.WithLabelValues("added")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(om.Builder.RunsTotal.WithLabelValues(resultCompleted)), 0)
}

func TestFlushFailureStopsRun(t *testing.T) {
	t.Parallel()

	lister := newLister()
	lister.addSet("sv1", date(2023, time.March), 6)

	backend := catalog.NewMemoryBackend()
	store := openStore(t, backend)
	backend.FailSaves(errors.NewStd("disk full"))

	report, err := newBuilder(t, lister, store, Options{BatchSize: 2}).Run(t.Context())
	require.Error(t, err)
	assert.False(t, report.Interrupted)
	assert.Equal(t, int64(2), report.Processed, "the run stops at the first failed flush")
	assert.Zero(t, store.Len())

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "builder", ee.GetComponent())
	assert.Equal(t, "flush_batch", ee.GetContext()["operation"])
	assert.Equal(t, 2, ee.GetContext()["cards"])
	assert.Equal(t, int64(1000), ee.GetContext()["duration_ms"], "one clock step")
}

func TestRunExportsCSV(t *testing.T) {
	t.Parallel()

	lister := newLister()
	lister.addSet("sv1", date(2023, time.March), 3)

	path := filepath.Join(t.TempDir(), "export", "hashes.csv")
	store := openStore(t, catalog.NewMemoryBackend())
	report, err := newBuilder(t, lister, store, Options{ExportPath: path}).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, path, report.ExportPath)

	records, err := catalog.ImportCSV(path, testutil.SmallShape())
	require.NoError(t, err)
	assert.Equal(t, []string{"sv1-1", "sv1-2", "sv1-3"}, ids(records))
}

func TestSortSets(t *testing.T) {
	t.Parallel()

	sets := []tcgdex.SetSummary{
		{ID: "undated-a"},
		{ID: "base1", ReleaseDate: date(1999, time.January)},
		{ID: "sv1", ReleaseDate: date(2023, time.March)},
		{ID: "undated-b"},
		{ID: "xy1", ReleaseDate: date(2014, time.February)},
	}
	sortSets(sets)

	got := make([]string, len(sets))
	for i, s := range sets {
		got[i] = s.ID
	}
	assert.Equal(t, []string{"sv1", "xy1", "base1", "undated-a", "undated-b"}, got)
}

func TestSizeFlushPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size    int
		pending int
		want    bool
	}{
		{50, 0, false},
		{50, 49, false},
		{50, 50, true},
		{50, 51, true},
		{0, 1, true},
		{0, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("size_%d_pending_%d", tt.size, tt.pending), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SizeFlushPolicy{Size: tt.size}.ShouldFlush(tt.pending))
		})
	}
}

func TestRateThrottleHonorsContext(t *testing.T) {
	t.Parallel()

	th := NewRateThrottle(time.Hour)
	require.NoError(t, th.Wait(t.Context()), "the first token is free")

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, th.Wait(ctx))
}

func TestReportRender(t *testing.T) {
	t.Parallel()

	r := &Report{
		RunID:       "run-1",
		Duration:    90 * time.Second,
		TotalSets:   3,
		SetsVisited: 2,
		Processed:   10,
		Added:       7,
		Skipped:     2,
		Failed:      1,
		Failures: []Failure{
			{CardID: "sv1-9", SetID: "sv1", Reason: ReasonFetch, Err: errors.NewStd("connection reset")},
		},
		CatalogSize: 40,
		Interrupted: true,
	}

	var buf bytes.Buffer
	r.Render(&buf)
	out := buf.String()

	assert.Contains(t, out, "Catalog build run-1")
	assert.Contains(t, out, "sv1-9")
	assert.Contains(t, out, "connection reset")
	assert.Contains(t, out, "interrupted")
	assert.NotContains(t, out, "\x1b[", "no color codes outside a terminal")
}

func ids(records []catalog.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
