// Package matcher ranks catalog records against a query image and turns the
// best candidate into a recognition result.
package matcher

import (
	"context"
	"image"
	"sort"
	"time"

	"github.com/tcgvision/cardmatch/internal/catalog"
	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/observability/metrics"
)

// cancelCheckInterval is how many records are scanned between context checks.
const cancelCheckInterval = 1024

// Candidate is one ranked catalog record.
type Candidate struct {
	ID       string `json:"id"`
	Distance int    `json:"distance"`
}

// Hasher computes query fingerprints. *imagehash.Computer implements it.
type Hasher interface {
	Compute(img image.Image) (imagehash.FingerprintSet, error)
}

// Matcher ranks the records of a catalog snapshot by fingerprint distance.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	hasher  Hasher
	catalog catalog.Reader
	policy  *ResourcePolicy
	log     logger.Logger
	metrics *metrics.MatcherMetrics
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithPolicy sets the presentation policy used by Recognize.
func WithPolicy(p *ResourcePolicy) Option {
	return func(m *Matcher) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics records ranking passes and request outcomes.
func WithMetrics(mm *metrics.MatcherMetrics) Option {
	return func(m *Matcher) { m.metrics = mm }
}

// New returns a Matcher over reader.
func New(hasher Hasher, reader catalog.Reader, opts ...Option) *Matcher {
	m := &Matcher{
		hasher:  hasher,
		catalog: reader,
		policy:  DefaultResourcePolicy(),
		log:     logger.Global().Module("matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the presentation policy.
func (m *Matcher) Policy() *ResourcePolicy { return m.policy }

// Match computes the query fingerprints of img and returns at most n
// candidates ordered by distance. Ties keep catalog insertion order.
func (m *Matcher) Match(ctx context.Context, img image.Image, hashType imagehash.HashType, n int) ([]Candidate, error) {
	if err := checkHashType(hashType); err != nil {
		return nil, err
	}
	query, err := m.hasher.Compute(img)
	if err != nil {
		return nil, err
	}
	return m.MatchFingerprints(ctx, query, hashType, n)
}

// MatchFingerprints is Match for callers that already hold fingerprints.
// An empty catalog or n <= 0 yields an empty slice.
func (m *Matcher) MatchFingerprints(ctx context.Context, query imagehash.FingerprintSet, hashType imagehash.HashType, n int) ([]Candidate, error) {
	top, err := m.rank(ctx, query, hashType, n)
	outcome := metrics.OutcomeMatched
	if err != nil {
		outcome = metrics.OutcomeError
	}
	m.metrics.RecordRequest(metrics.OpMatch, string(hashType), outcome)
	return top, err
}

func (m *Matcher) rank(ctx context.Context, query imagehash.FingerprintSet, hashType imagehash.HashType, n int) ([]Candidate, error) {
	if err := checkHashType(hashType); err != nil {
		return nil, err
	}
	snap := m.catalog.Snapshot()
	if n <= 0 || snap.Len() == 0 {
		return []Candidate{}, nil
	}

	start := time.Now()
	top := make([]Candidate, 0, min(n, snap.Len()))
	for i := range snap.Len() {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.New(err).
					Component("matcher").
					Category(errors.CategoryCancellation).
					Context("scanned", i).
					Build()
			}
		}

		rec := snap.At(i)
		d, err := query.Distance(rec.Fingerprints, hashType)
		if err != nil {
			return nil, errors.New(err).
				Component("matcher").
				Category(errors.CategoryHashMismatch).
				Context("card_id", rec.ID).
				Context("hash_type", string(hashType)).
				Build()
		}
		top = insertBounded(top, Candidate{ID: rec.ID, Distance: d}, n)
	}

	m.metrics.RecordMatch(string(hashType), snap.Len(), time.Since(start).Seconds(), top[0].Distance, true)
	m.log.Debug("match ranked",
		logger.String("hash_type", string(hashType)),
		logger.Int("scanned", snap.Len()),
		logger.Int("best_distance", top[0].Distance),
		logger.Duration("duration", time.Since(start)))
	return top, nil
}

// insertBounded inserts c into the sorted slice top, keeping at most n
// entries. Equal distances go after existing ones, so earlier records win ties.
func insertBounded(top []Candidate, c Candidate, n int) []Candidate {
	if len(top) == n && c.Distance >= top[n-1].Distance {
		return top
	}
	pos := sort.Search(len(top), func(i int) bool { return top[i].Distance > c.Distance })
	if len(top) < n {
		top = append(top, Candidate{})
	}
	copy(top[pos+1:], top[pos:len(top)-1])
	top[pos] = c
	return top
}

func checkHashType(t imagehash.HashType) error {
	if t.Valid() {
		return nil
	}
	return errors.Newf("invalid hash type %q", t).
		Component("matcher").
		Category(errors.CategoryInvalidHashType).
		Context("hash_type", string(t)).
		Build()
}
