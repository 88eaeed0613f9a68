package matcher

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/observability/metrics"
)

const (
	// RecognizeCandidates is how many candidates Recognize ranks.
	RecognizeCandidates = 10
	// MaxTopMatches bounds Recognition.TopMatches.
	MaxTopMatches = 5
	// MethodImageHash identifies results produced by fingerprint matching.
	MethodImageHash = "image-hash"

	// ConfidenceFloorDistance is the distance at which confidence bottoms out.
	ConfidenceFloorDistance = 30

	minConfidence = 50.0
	maxConfidence = 100.0
)

// Recognition is the presentable outcome of a successful recognize call.
type Recognition struct {
	ID          string      `json:"cardId"`
	DisplayName string      `json:"cardName"`
	Confidence  float64     `json:"confidence"`
	Method      string      `json:"method"`
	Distance    int         `json:"distance"`
	ResourceURL string      `json:"imageUrl"`
	TopMatches  []Candidate `json:"matches"`
}

// NoGoodMatchError reports that the best candidate is farther than the threshold.
type NoGoodMatchError struct {
	Best      Candidate
	Threshold int
}

func (e *NoGoodMatchError) Error() string {
	return fmt.Sprintf("no good match found (best distance: %d)", e.Best.Distance)
}

// ErrorCategory implements errors.CategorizedError.
func (e *NoGoodMatchError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryNoGoodMatch
}

// ErrNoMatch is wrapped into the error returned when the catalog has no
// candidates at all.
var ErrNoMatch = errors.NewStd("no matches found")

// Confidence maps a distance linearly to a percentage: 100 at 0, 50 at
// ConfidenceFloorDistance and clamped to 50 beyond. The result is rounded to
// one decimal.
func Confidence(distance int) float64 {
	c := maxConfidence - (maxConfidence-minConfidence)*float64(distance)/ConfidenceFloorDistance
	c = max(minConfidence, min(maxConfidence, c))
	return math.Round(c*10) / 10
}

// Recognize identifies img. It fails with ErrNoMatch (category no-match) on an empty catalog and
// with *NoGoodMatchError when the best distance exceeds threshold.
func (m *Matcher) Recognize(ctx context.Context, img image.Image, hashType imagehash.HashType, threshold int) (*Recognition, error) {
	if err := checkHashType(hashType); err != nil {
		return nil, err
	}
	query, err := m.hasher.Compute(img)
	if err != nil {
		return nil, err
	}
	return m.RecognizeFingerprints(ctx, query, hashType, threshold)
}

// RecognizeFingerprints is Recognize for precomputed fingerprints.
func (m *Matcher) RecognizeFingerprints(ctx context.Context, query imagehash.FingerprintSet, hashType imagehash.HashType, threshold int) (*Recognition, error) {
	candidates, err := m.rank(ctx, query, hashType, RecognizeCandidates)
	if err != nil {
		m.metrics.RecordRequest(metrics.OpRecognize, string(hashType), metrics.OutcomeError)
		return nil, err
	}
	if len(candidates) == 0 {
		m.metrics.RecordRequest(metrics.OpRecognize, string(hashType), metrics.OutcomeNoMatch)
		return nil, errors.New(ErrNoMatch).
			Component("matcher").
			Category(errors.CategoryNoMatch).
			Build()
	}

	best := candidates[0]
	if best.Distance > threshold {
		m.metrics.RecordRequest(metrics.OpRecognize, string(hashType), metrics.OutcomeNoGoodMatch)
		m.log.Debug("best candidate above threshold",
			logger.String("card_id", best.ID),
			logger.Int("distance", best.Distance),
			logger.Int("threshold", threshold))
		return nil, &NoGoodMatchError{Best: best, Threshold: threshold}
	}

	pres := m.policy.Resolve(best.ID)
	m.metrics.RecordRequest(metrics.OpRecognize, string(hashType), metrics.OutcomeRecognized)
	return &Recognition{
		ID:          best.ID,
		DisplayName: pres.DisplayName,
		Confidence:  Confidence(best.Distance),
		Method:      MethodImageHash,
		Distance:    best.Distance,
		ResourceURL: pres.ResourceURL,
		TopMatches:  candidates[:min(len(candidates), MaxTopMatches)],
	}, nil
}
