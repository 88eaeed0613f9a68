package api

import (
	"context"
	"encoding/base64"
	"image"
	"strings"

	"github.com/tcgvision/cardmatch/internal/catalog"
	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/matcher"
)

// Hasher computes the fingerprints of a decoded image.
type Hasher interface {
	Compute(img image.Image) (imagehash.FingerprintSet, error)
}

// Store is the catalog the service reads from and adds to.
type Store interface {
	catalog.Reader
	Len() int
	Has(id string) bool
	Add(ctx context.Context, rec catalog.Record) error
}

// HealthResult is returned by Health.
type HealthResult struct {
	Status string `json:"status"`
	Cards  int    `json:"cards"`
}

// MatchResult is returned by Match.
type MatchResult struct {
	Matches  []matcher.Candidate `json:"matches"`
	HashType imagehash.HashType  `json:"hash_type"`
}

// HashResult is returned by ComputeHash. CardID echoes the request and is
// null when none was given.
type HashResult struct {
	Hashes imagehash.HashStrings `json:"hashes"`
	CardID *string               `json:"card_id"`
}

// AddResult is returned by AddCard.
type AddResult struct {
	CardID     string                `json:"card_id"`
	Hashes     imagehash.HashStrings `json:"hashes"`
	TotalCards int                   `json:"total_cards"`
}

// Service implements the matching operations independent of any transport.
// It is safe for concurrent use.
type Service struct {
	hasher   Hasher
	store    Store
	matcher  *matcher.Matcher
	defaults RequestDefaults
	log      logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDefaults overrides the request defaults.
func WithDefaults(d RequestDefaults) ServiceOption {
	return func(s *Service) { s.defaults = d }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l logger.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires a service over store. m must rank the same store.
func NewService(hasher Hasher, store Store, m *matcher.Matcher, opts ...ServiceOption) *Service {
	s := &Service{
		hasher:   hasher,
		store:    store,
		matcher:  m,
		defaults: StandardRequestDefaults(),
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the request defaults in effect.
func (s *Service) Defaults() RequestDefaults { return s.defaults }

// Health reports liveness and the catalog size.
func (s *Service) Health() HealthResult {
	return HealthResult{Status: "ok", Cards: s.store.Len()}
}

// Match ranks the catalog against the image. An empty hashType and a nil
// topN take the defaults; topN is capped at RequestDefaults.MaxTopN.
func (s *Service) Match(ctx context.Context, data []byte, hashType string, topN *int) (*MatchResult, error) {
	t, err := imagehash.ParseHashType(orDefault(hashType, s.defaults.HashType))
	if err != nil {
		return nil, err
	}
	n := s.defaults.TopN
	if topN != nil {
		n = min(*topN, s.defaults.MaxTopN)
	}

	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	matches, err := s.matcher.Match(ctx, img, t, n)
	if err != nil {
		return nil, err
	}
	return &MatchResult{Matches: matches, HashType: t}, nil
}

// ComputeHash returns the fingerprints of the image without touching the catalog.
func (s *Service) ComputeHash(_ context.Context, data []byte, cardID string) (*HashResult, error) {
	fp, err := s.compute(data)
	if err != nil {
		return nil, err
	}
	res := &HashResult{Hashes: fp.Strings()}
	if id := strings.TrimSpace(cardID); id != "" {
		res.CardID = &id
	}
	return res, nil
}

// AddCard fingerprints the image and appends it to the catalog under cardID.
// An id already present fails with a conflict before the image is decoded.
func (s *Service) AddCard(ctx context.Context, data []byte, cardID string) (*AddResult, error) {
	id := strings.TrimSpace(cardID)
	if id == "" {
		return nil, errors.InvalidInput("api", "missing image or card_id")
	}
	if s.store.Has(id) {
		return nil, conflict(id)
	}

	fp, err := s.compute(data)
	if err != nil {
		return nil, err
	}
	if err := s.store.Add(ctx, catalog.Record{ID: id, Fingerprints: fp}); err != nil {
		return nil, err
	}

	total := s.store.Len()
	s.log.Info("card added", logger.String("card_id", id), logger.Int("total_cards", total))
	return &AddResult{CardID: id, Hashes: fp.Strings(), TotalCards: total}, nil
}

// Recognize returns the presentable best match. An empty hashType and a nil
// threshold take the defaults.
func (s *Service) Recognize(ctx context.Context, data []byte, hashType string, threshold *int) (*matcher.Recognition, error) {
	t, err := imagehash.ParseHashType(orDefault(hashType, s.defaults.HashType))
	if err != nil {
		return nil, err
	}
	limit := s.defaults.Threshold
	if threshold != nil {
		limit = *threshold
	}

	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	return s.matcher.Recognize(ctx, img, t, limit)
}

func (s *Service) compute(data []byte) (imagehash.FingerprintSet, error) {
	img, err := decodeImage(data)
	if err != nil {
		return imagehash.FingerprintSet{}, err
	}
	return s.hasher.Compute(img)
}

func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.InvalidInput("api", "missing image data")
	}
	img, _, err := imagehash.DecodeBytes(data)
	return img, err
}

// DecodeBase64Image decodes the image field of a JSON request. A data URL
// prefix ("data:image/png;base64,") is accepted and surrounding whitespace
// ignored.
func DecodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.InvalidInput("api", "missing image data")
	}
	if strings.HasPrefix(s, "data:") {
		if _, payload, ok := strings.Cut(s, ","); ok {
			s = payload
		}
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients strip the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryInvalidInput).
			Context("operation", "decode_base64").
			Build()
	}
	return data, nil
}

func orDefault(s string, def imagehash.HashType) string {
	if strings.TrimSpace(s) == "" {
		return string(def)
	}
	return s
}

func conflict(id string) error {
	return errors.Newf("card %s already exists in database", id).
		Component("api").
		Category(errors.CategoryConflict).
		Context("card_id", id).
		Build()
}
