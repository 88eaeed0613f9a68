package tcgdex

import (
	"time"

	"github.com/tcgvision/cardmatch/internal/conf"
)

// Default client settings.
const (
	DefaultBaseURL  = "https://api.tcgdex.net/v2"
	DefaultLanguage = "en"
	DefaultTimeout  = 15 * time.Second
	DefaultCacheTTL = time.Hour

	// MaxImageBytes bounds a single card image download.
	MaxImageBytes = 20 << 20
	// maxListingBytes bounds a set or card listing response.
	maxListingBytes = 32 << 20

	// imageQualitySuffix selects the highest quality tier of a TCGdex asset base URL.
	imageQualitySuffix = "/high.png"
)

// Config holds the TCGdex client configuration.
type Config struct {
	BaseURL   string
	Language  string
	Timeout   time.Duration
	CacheTTL  time.Duration
	UserAgent string
	// FillReleaseDates fetches each set's detail during ListSets when the
	// brief listing has no release date. The listing endpoint never carries
	// dates, so without it sets cannot be ordered newest first.
	FillReleaseDates bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		Language: DefaultLanguage,
		Timeout:  DefaultTimeout,
		CacheTTL: DefaultCacheTTL,

		FillReleaseDates: true,
	}
}

// ConfigFromSettings maps the tcgdex config section.
func ConfigFromSettings(s conf.TCGdexSettings) Config {
	return Config{
		BaseURL:          s.BaseURL,
		Language:         s.Language,
		Timeout:          s.Timeout,
		CacheTTL:         s.CacheTTL,
		UserAgent:        s.UserAgent,
		FillReleaseDates: s.FillReleaseDates,
	}
}

// SetSummary is one entry of the set listing.
type SetSummary struct {
	ID          string
	Name        string
	ReleaseDate time.Time // zero when unknown
	CardCount   int
}

// CardSummary is one card of a set listing.
type CardSummary struct {
	ID       string
	LocalID  string
	Name     string
	SetID    string
	ImageURL string // empty when the card has no image
}

// setDetail is the cached parse of GET /sets/{id}.
type setDetail struct {
	releaseDate time.Time
	cards       []CardSummary
}
