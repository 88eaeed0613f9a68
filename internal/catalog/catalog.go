// Package catalog holds the reference fingerprints of known cards.
//
// A Catalog is loaded from a Backend at Open and kept in memory. Readers take
// an immutable Snapshot without locking; writers are serialized and persist a
// full snapshot before the new state becomes visible, so a failed write leaves
// both memory and storage unchanged.
package catalog

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/observability/metrics"
)

// Record is one catalog entry. Records are never modified after creation.
type Record struct {
	ID           string
	Fingerprints imagehash.FingerprintSet
}

// Snapshot is an immutable view of the catalog at one point in time.
type Snapshot struct {
	records []Record
	index   map[string]int
}

func newSnapshot(records []Record) *Snapshot {
	index := make(map[string]int, len(records))
	for i, r := range records {
		index[r.ID] = i
	}
	return &Snapshot{records: records, index: index}
}

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.records) }

// At returns the record at insertion position i.
func (s *Snapshot) At(i int) Record { return s.records[i] }

// Has reports whether id is present.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Get returns the record for id.
func (s *Snapshot) Get(id string) (Record, bool) {
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// Records returns a copy of all records in insertion order.
func (s *Snapshot) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Scan calls fn for every record in insertion order until fn returns false.
func (s *Snapshot) Scan(fn func(i int, r Record) bool) {
	for i, r := range s.records {
		if !fn(i, r) {
			return
		}
	}
}

// Reader is the read side of a Catalog.
type Reader interface {
	Snapshot() *Snapshot
}

// Catalog is the live fingerprint collection.
type Catalog struct {
	backend Backend
	shape   imagehash.Shape
	log     logger.Logger
	metrics *metrics.CatalogMetrics

	writeMu sync.Mutex
	snap    atomic.Pointer[Snapshot]
	closed  atomic.Bool
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithShape fixes the fingerprint shape every record must have. Without it
// the shape of the first loaded or added record is used.
func WithShape(shape imagehash.Shape) Option {
	return func(c *Catalog) { c.shape = shape }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics records catalog size and write outcomes.
func WithMetrics(m *metrics.CatalogMetrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// Open loads every record from backend. Duplicate ids or records of the wrong
// shape make the stored catalog unusable and fail Open.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		backend: backend,
		log:     logger.Global().Module("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}

	start := time.Now()
	records, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}

	if c.shape == (imagehash.Shape{}) && len(records) > 0 {
		c.shape = records[0].Fingerprints.Shape()
	}
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return nil, c.corrupt(i, "record has an empty id")
		}
		if _, dup := seen[r.ID]; dup {
			return nil, c.corrupt(i, "duplicate id "+r.ID)
		}
		seen[r.ID] = struct{}{}
		if err := c.shape.Validate(r.Fingerprints); err != nil {
			return nil, errors.New(err).
				Component("catalog").
				Category(errors.CategoryHashMismatch).
				Context("backend", backend.Name()).
				Context("record_index", i).
				Build()
		}
	}

	c.snap.Store(newSnapshot(records))
	c.metrics.SetSize(len(records))
	c.log.Info("catalog loaded",
		logger.String("backend", backend.Name()),
		logger.Int("cards", len(records)),
		logger.Duration("duration", time.Since(start)))
	return c, nil
}

// Close releases the backend. The in-memory snapshot stays readable.
func (c *Catalog) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.backend.Close()
}

// Snapshot returns the current immutable view.
func (c *Catalog) Snapshot() *Snapshot { return c.snap.Load() }

// Len returns the number of records.
func (c *Catalog) Len() int { return c.Snapshot().Len() }

// Has reports whether id is present.
func (c *Catalog) Has(id string) bool { return c.Snapshot().Has(id) }

// Get returns the record for id.
func (c *Catalog) Get(id string) (Record, bool) { return c.Snapshot().Get(id) }

// Records returns a copy of all records in insertion order.
func (c *Catalog) Records() []Record { return c.Snapshot().Records() }

// Scan iterates the current snapshot.
func (c *Catalog) Scan(fn func(i int, r Record) bool) { c.Snapshot().Scan(fn) }

// Shape returns the enforced fingerprint shape, zero until known.
func (c *Catalog) Shape() imagehash.Shape {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.shape
}

// Backend returns the storage backend name.
func (c *Catalog) Backend() string { return c.backend.Name() }

// Add appends one record. It fails with a conflict when the id is present.
func (c *Catalog) Add(ctx context.Context, rec Record) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err := c.add(ctx, rec)
	c.metrics.RecordWrite(metrics.OpAdd, err)
	return err
}

func (c *Catalog) add(ctx context.Context, rec Record) error {
	if err := c.writable(); err != nil {
		return err
	}
	shape := c.shapeFor(rec)
	rec, err := validate(rec, shape)
	if err != nil {
		return err
	}

	cur := c.snap.Load()
	if cur.Has(rec.ID) {
		return errors.Newf("card %q already exists", rec.ID).
			Component("catalog").
			Category(errors.CategoryConflict).
			Context("card_id", rec.ID).
			Build()
	}

	next := make([]Record, cur.Len(), cur.Len()+1)
	copy(next, cur.records)
	next = append(next, rec)
	return c.commit(ctx, next, shape)
}

// AddBatch appends every record whose id is not yet present, in order.
// Repeated ids inside the batch keep their first occurrence. The batch is
// persisted once; on failure nothing is added.
func (c *Catalog) AddBatch(ctx context.Context, recs []Record) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	added, err := c.addBatch(ctx, recs)
	c.metrics.RecordWrite(metrics.OpBatch, err)
	return added, err
}

func (c *Catalog) addBatch(ctx context.Context, recs []Record) (int, error) {
	if err := c.writable(); err != nil {
		return 0, err
	}

	if len(recs) == 0 {
		return 0, nil
	}

	cur := c.snap.Load()
	shape := c.shapeFor(recs[0])
	fresh := make([]Record, 0, len(recs))
	batchIDs := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		r, err := validate(r, shape)
		if err != nil {
			return 0, err
		}
		if cur.Has(r.ID) {
			continue
		}
		if _, dup := batchIDs[r.ID]; dup {
			continue
		}
		batchIDs[r.ID] = struct{}{}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	next := make([]Record, 0, cur.Len()+len(fresh))
	next = append(next, cur.records...)
	next = append(next, fresh...)
	if err := c.commit(ctx, next, shape); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// Remove deletes the record for id. It fails with not-found when absent.
func (c *Catalog) Remove(ctx context.Context, id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err := c.remove(ctx, strings.TrimSpace(id))
	c.metrics.RecordWrite(metrics.OpRemove, err)
	return err
}

func (c *Catalog) remove(ctx context.Context, id string) error {
	if err := c.writable(); err != nil {
		return err
	}
	cur := c.snap.Load()
	pos, ok := cur.index[id]
	if !ok {
		return errors.Newf("card %q not found", id).
			Component("catalog").
			Category(errors.CategoryNotFound).
			Context("card_id", id).
			Build()
	}

	next := make([]Record, 0, cur.Len()-1)
	next = append(next, cur.records[:pos]...)
	next = append(next, cur.records[pos+1:]...)
	return c.commit(ctx, next, c.shape)
}

// commit persists next and publishes it. Must hold writeMu.
func (c *Catalog) commit(ctx context.Context, next []Record, shape imagehash.Shape) error {
	start := time.Now()
	err := c.backend.Save(ctx, next)
	c.metrics.ObservePersist(c.backend.Name(), time.Since(start).Seconds(), err)
	if err != nil {
		c.log.Error("catalog persist failed, in-memory state unchanged",
			logger.String("backend", c.backend.Name()),
			logger.Int("cards", len(next)),
			logger.Error(err))
		return err
	}

	c.shape = shape
	c.snap.Store(newSnapshot(next))
	c.metrics.SetSize(len(next))
	c.log.Debug("catalog persisted",
		logger.String("backend", c.backend.Name()),
		logger.Int("cards", len(next)),
		logger.Duration("duration", time.Since(start)))
	return nil
}

func (c *Catalog) writable() error {
	if c.closed.Load() {
		return errors.Newf("catalog is closed").
			Component("catalog").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// shapeFor returns the enforced shape, or the shape of first while the
// catalog is still empty and unconstrained. Must hold writeMu.
func (c *Catalog) shapeFor(first Record) imagehash.Shape {
	if c.shape == (imagehash.Shape{}) {
		return first.Fingerprints.Shape()
	}
	return c.shape
}

// validate normalizes the id and checks the fingerprint shape.
func validate(rec Record, shape imagehash.Shape) (Record, error) {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return rec, errors.InvalidInput("catalog", "card id is required")
	}
	if err := shape.Validate(rec.Fingerprints); err != nil {
		return rec, errors.New(err).
			Component("catalog").
			Category(errors.CategoryInvalidInput).
			Context("card_id", rec.ID).
			Build()
	}
	return rec, nil
}

func (c *Catalog) corrupt(index int, msg string) error {
	return errors.Newf("stored catalog is invalid: %s", msg).
		Component("catalog").
		Category(errors.CategoryValidation).
		Context("backend", c.backend.Name()).
		Context("record_index", index).
		Build()
}
