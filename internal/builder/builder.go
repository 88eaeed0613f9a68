// Package builder crawls the card database and adds the fingerprints of
// cards missing from the catalog. Runs are sequential, throttled and
// resumable: cards already in the catalog are skipped and the pending batch
// is always persisted before Run returns, even when the run is interrupted.
package builder

import (
	"cmp"
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tcgvision/cardmatch/internal/catalog"
	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/observability/metrics"
	"github.com/tcgvision/cardmatch/internal/tcgdex"
)

// Defaults
const (
	DefaultBatchSize    = 50
	DefaultFetchTimeout = 15 * time.Second
	DefaultDelay        = 100 * time.Millisecond

	finalFlushTimeout = 30 * time.Second
	skipLogInterval   = 10
)

// Run results for metrics.
const (
	resultCompleted   = "completed"
	resultInterrupted = "interrupted"
	resultFailed      = "failed"
)

// Lister is the card database the builder crawls. *tcgdex.Client implements it.
type Lister interface {
	ListSets(ctx context.Context) ([]tcgdex.SetSummary, error)
	ListCards(ctx context.Context, setID string) ([]tcgdex.CardSummary, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Hasher computes fingerprints from encoded image bytes.
type Hasher interface {
	ComputeBytes(data []byte) (imagehash.FingerprintSet, error)
}

// Store is the catalog being extended. *catalog.Catalog implements it.
type Store interface {
	Has(id string) bool
	Len() int
	AddBatch(ctx context.Context, recs []catalog.Record) (int, error)
	Records() []catalog.Record
}

// Options configures a run. Zero values take the defaults.
type Options struct {
	BatchSize    int
	StartFrom    int // index into the date-sorted set list
	Limit        int // maximum cards processed, 0 for no limit
	FetchTimeout time.Duration
	Throttle     Throttle
	FlushPolicy  FlushPolicy
	ExportPath   string // flattened CSV written at the end, empty to skip
	Clock        Clock
	Logger       logger.Logger
	Metrics      *metrics.BuilderMetrics
}

// Builder runs catalog builds. A Builder runs one build at a time.
type Builder struct {
	lister Lister
	hasher Hasher
	store  Store
	opts   Options
	log    logger.Logger

	processed atomic.Int64
	added     atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	queued    atomic.Int64

	// Only touched by the Run goroutine.
	pending    []catalog.Record
	pendingIDs map[string]struct{}
	failures   []Failure
}

// New validates opts and returns a Builder.
func New(lister Lister, hasher Hasher, store Store, opts Options) (*Builder, error) {
	if opts.StartFrom < 0 {
		return nil, errors.InvalidInput("builder", "start index must not be negative")
	}
	if opts.Limit < 0 {
		return nil, errors.InvalidInput("builder", "limit must not be negative")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Throttle == nil {
		opts.Throttle = NewRateThrottle(DefaultDelay)
	}
	if opts.FlushPolicy == nil {
		opts.FlushPolicy = SizeFlushPolicy{Size: opts.BatchSize}
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("builder")
	}

	return &Builder{
		lister: lister,
		hasher: hasher,
		store:  store,
		opts:   opts,
		log:    log,
	}, nil
}

// Progress returns the counters of the current or last run. Safe to call
// from any goroutine.
func (b *Builder) Progress() Progress {
	return Progress{
		Processed: b.processed.Load(),
		Added:     b.added.Load(),
		Skipped:   b.skipped.Load(),
		Failed:    b.failed.Load(),
		Pending:   b.queued.Load(),
	}
}

// Run crawls every set from StartFrom on. The returned Report is never nil.
// When ctx is cancelled the pending batch is still flushed and the error has
// category cancellation.
func (b *Builder) Run(ctx context.Context) (report *Report, err error) {
	b.reset()
	report = &Report{
		RunID:        uuid.NewString(),
		StartedAt:    b.opts.Clock.Now(),
		NextSetIndex: b.opts.StartFrom,
		ExportPath:   b.opts.ExportPath,
	}
	log := b.log.With(logger.String("run_id", report.RunID))

	defer func() {
		// The final flush must survive the cancellation that ended the run.
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
		if ferr := b.flush(flushCtx, log); ferr != nil {
			err = errors.Join(err, ferr)
		}

		if b.opts.ExportPath != "" {
			if xerr := catalog.ExportCSV(b.opts.ExportPath, b.store.Records()); xerr != nil {
				log.Error("flattened export failed", logger.String("path", b.opts.ExportPath), logger.Error(xerr))
				err = errors.Join(err, xerr)
			} else {
				log.Info("flattened export written", logger.String("path", b.opts.ExportPath))
			}
		}

		b.finish(report, err)
		log.Info("catalog build finished",
			logger.Int64("processed", report.Processed),
			logger.Int64("added", report.Added),
			logger.Int64("skipped", report.Skipped),
			logger.Int64("failed", report.Failed),
			logger.Int("catalog_size", report.CatalogSize),
			logger.Bool("interrupted", report.Interrupted),
			logger.Duration("duration", report.Duration))
	}()

	sets, err := b.lister.ListSets(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return report, interrupted(ctx)
		}
		return report, err
	}
	sortSets(sets)
	report.TotalSets = len(sets)
	log.Info("catalog build started",
		logger.Int("sets", len(sets)),
		logger.Int("start_from", b.opts.StartFrom),
		logger.Int("limit", b.opts.Limit),
		logger.Int("catalog_size", b.store.Len()))

	for idx := b.opts.StartFrom; idx < len(sets); idx++ {
		if b.limitReached() {
			break
		}
		if ctx.Err() != nil {
			return report, interrupted(ctx)
		}

		set := sets[idx]
		cards, err := b.lister.ListCards(ctx, set.ID)
		if err != nil {
			if ctx.Err() != nil {
				return report, interrupted(ctx)
			}
			b.fail(log, Failure{SetID: set.ID, Reason: ReasonSetListing, Err: err})
			report.NextSetIndex = idx + 1
			continue
		}
		log.Info("processing set",
			logger.Int("index", idx+1),
			logger.Int("total", len(sets)),
			logger.String("set_id", set.ID),
			logger.String("name", set.Name),
			logger.Int("cards", len(cards)))

		for _, card := range cards {
			if ctx.Err() != nil {
				return report, interrupted(ctx)
			}
			if b.limitReached() {
				log.Info("card limit reached", logger.Int("limit", b.opts.Limit))
				break
			}
			if err := b.processCard(ctx, log, set, card); err != nil {
				return report, err
			}
			if b.opts.FlushPolicy.ShouldFlush(len(b.pending)) {
				if err := b.flush(ctx, log); err != nil {
					if ctx.Err() != nil {
						return report, interrupted(ctx)
					}
					return report, err
				}
			}
		}

		if ctx.Err() != nil {
			return report, interrupted(ctx)
		}
		report.SetsVisited++
		report.NextSetIndex = idx + 1
		b.opts.Metrics.RecordSet()
	}

	return report, nil
}

// processCard handles one card. It only returns an error when the run must
// stop; per-card problems are recorded as failures.
func (b *Builder) processCard(ctx context.Context, log logger.Logger, set tcgdex.SetSummary, card tcgdex.CardSummary) error {
	b.processed.Add(1)

	if b.store.Has(card.ID) || b.isPending(card.ID) {
		skipped := b.skipped.Add(1)
		b.opts.Metrics.RecordCard(metrics.OutcomeSkipped)
		if skipped%skipLogInterval == 0 {
			log.Info("skipping existing cards", logger.Int64("skipped", skipped))
		}
		return nil
	}

	if card.ImageURL == "" {
		b.fail(log, Failure{CardID: card.ID, SetID: set.ID, Reason: ReasonNoImage})
		return nil
	}

	if err := b.opts.Throttle.Wait(ctx); err != nil {
		// Not processed after all: a rerun picks the card up again.
		b.processed.Add(-1)
		return interrupted(ctx)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, b.opts.FetchTimeout)
	data, err := b.lister.FetchImage(fetchCtx, card.ImageURL)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			b.processed.Add(-1)
			return interrupted(ctx)
		}
		reason := ReasonFetch
		if errors.Is(err, context.DeadlineExceeded) || errors.IsCategory(err, errors.CategoryTimeout) {
			reason = ReasonTimeout
		}
		b.fail(log, Failure{CardID: card.ID, SetID: set.ID, Reason: reason, Err: err})
		return nil
	}

	fp, err := b.hasher.ComputeBytes(data)
	if err != nil {
		b.fail(log, Failure{CardID: card.ID, SetID: set.ID, Reason: ReasonDecode, Err: err})
		return nil
	}

	b.pending = append(b.pending, catalog.Record{ID: card.ID, Fingerprints: fp})
	b.pendingIDs[card.ID] = struct{}{}
	b.queued.Store(int64(len(b.pending)))
	b.added.Add(1)
	b.opts.Metrics.RecordCard(metrics.OutcomeAdded)
	log.Debug("card hashed", logger.String("card_id", card.ID), logger.String("name", card.Name))
	return nil
}

// flush persists the pending batch. On failure the batch is kept so a later
// flush can retry it.
func (b *Builder) flush(ctx context.Context, log logger.Logger) error {
	if len(b.pending) == 0 {
		return nil
	}

	n := len(b.pending)
	start := b.opts.Clock.Now()
	added, err := b.store.AddBatch(ctx, b.pending)
	b.opts.Metrics.RecordFlush(n, err)
	if err != nil {
		log.Error("batch save failed", logger.Int("cards", n), logger.Error(err))
		return errors.New(err).
			Component("builder").
			Timing("flush_batch", b.opts.Clock.Now().Sub(start)).
			Context("cards", n).
			Build()
	}

	b.pending = b.pending[:0]
	clear(b.pendingIDs)
	b.queued.Store(0)

	p := b.Progress()
	log.Info("batch saved",
		logger.Int("cards", added),
		logger.Int("catalog_size", b.store.Len()),
		logger.Int64("added", p.Added),
		logger.Int64("skipped", p.Skipped),
		logger.Int64("processed", p.Processed))
	return nil
}

func (b *Builder) fail(log logger.Logger, f Failure) {
	b.failures = append(b.failures, f)
	b.failed.Add(1)
	b.opts.Metrics.RecordFailure(f.Reason)

	fields := []logger.Field{
		logger.String("set_id", f.SetID),
		logger.String("reason", f.Reason),
	}
	if f.CardID != "" {
		fields = append(fields, logger.String("card_id", f.CardID))
	}
	if f.Err != nil {
		fields = append(fields, logger.Error(f.Err))
	}
	log.Warn("skipping card", fields...)
}

func (b *Builder) isPending(id string) bool {
	_, ok := b.pendingIDs[id]
	return ok
}

func (b *Builder) limitReached() bool {
	return b.opts.Limit > 0 && b.processed.Load() >= int64(b.opts.Limit)
}

func (b *Builder) reset() {
	b.processed.Store(0)
	b.added.Store(0)
	b.skipped.Store(0)
	b.failed.Store(0)
	b.queued.Store(0)
	b.pending = nil
	b.pendingIDs = make(map[string]struct{})
	b.failures = nil
}

func (b *Builder) finish(report *Report, err error) {
	p := b.Progress()
	report.Processed = p.Processed
	report.Added = p.Added
	report.Skipped = p.Skipped
	report.Failed = p.Failed
	report.Failures = slices.Clone(b.failures)
	report.CatalogSize = b.store.Len()
	report.Duration = b.opts.Clock.Now().Sub(report.StartedAt)
	report.Interrupted = errors.IsCategory(err, errors.CategoryCancellation)

	switch {
	case report.Interrupted:
		b.opts.Metrics.RecordRun(resultInterrupted)
	case err != nil:
		b.opts.Metrics.RecordRun(resultFailed)
	default:
		b.opts.Metrics.RecordRun(resultCompleted)
	}
}

// sortSets orders sets newest first. Undated sets go last in listing order.
func sortSets(sets []tcgdex.SetSummary) {
	slices.SortStableFunc(sets, func(a, b tcgdex.SetSummary) int {
		switch {
		case a.ReleaseDate.IsZero() && b.ReleaseDate.IsZero():
			return 0
		case a.ReleaseDate.IsZero():
			return 1
		case b.ReleaseDate.IsZero():
			return -1
		}
		return cmp.Compare(b.ReleaseDate.UnixNano(), a.ReleaseDate.UnixNano())
	})
}

func interrupted(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return errors.New(cause).
		Component("builder").
		Category(errors.CategoryCancellation).
		Build()
}
