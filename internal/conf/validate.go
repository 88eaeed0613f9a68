// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/labstack/gommon/bytes"
)

// maxPerceptualGrid bounds the DCT input side to keep hashing cost reasonable.
const maxPerceptualGrid = 1024

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateHashSettings,
		validateCatalogSettings,
		validateServerSettings,
		validateAPISettings,
		validateResolverSettings,
		validateBuilderSettings,
		validateTCGdexSettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func validateHashSettings(s *Settings) []string {
	var errs []string
	h := s.Hash

	if h.PerceptualSize < 2 {
		errs = append(errs, "hash.perceptual_size must be at least 2")
	}
	if h.HighFreqFactor < 1 {
		errs = append(errs, "hash.highfreq_factor must be at least 1")
	}
	if h.PerceptualSize*h.HighFreqFactor > maxPerceptualGrid {
		errs = append(errs, fmt.Sprintf("hash.perceptual_size * hash.highfreq_factor must not exceed %d", maxPerceptualGrid))
	}
	if h.DifferenceSize < 2 {
		errs = append(errs, "hash.difference_size must be at least 2")
	}
	if !isPowerOfTwo(h.WaveletSize) || h.WaveletSize < 2 {
		errs = append(errs, "hash.wavelet_size must be a power of two and at least 2")
	}
	if h.ColorBinBits < 1 || h.ColorBinBits > 8 {
		errs = append(errs, "hash.color_bin_bits must be between 1 and 8")
	}

	return errs
}

func validateCatalogSettings(s *Settings) []string {
	var errs []string
	c := s.Catalog

	switch c.Driver {
	case DriverFile:
		if strings.TrimSpace(c.Path) == "" {
			errs = append(errs, "catalog.path is required for the file driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, "catalog.sqlite_path is required for the sqlite driver")
		}
	case DriverMySQL:
		if c.MySQL.Host == "" || c.MySQL.Database == "" {
			errs = append(errs, "catalog.mysql.host and catalog.mysql.database are required for the mysql driver")
		}
		if c.MySQL.Port < 1 || c.MySQL.Port > 65535 {
			errs = append(errs, "catalog.mysql.port must be between 1 and 65535")
		}
	default:
		errs = append(errs, fmt.Sprintf("catalog.driver %q is not one of file, sqlite, mysql", c.Driver))
	}

	return errs
}

func validateServerSettings(s *Settings) []string {
	var errs []string

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if s.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}

	return errs
}

func validateAPISettings(s *Settings) []string {
	var errs []string
	a := s.API

	if _, err := bytes.Parse(a.BodyLimit); err != nil {
		errs = append(errs, fmt.Sprintf("api.body_limit %q is not a size: %v", a.BodyLimit, err))
	}
	switch strings.ToLower(a.DefaultHashType) {
	case "perceptual", "difference", "wavelet", "color":
	default:
		errs = append(errs, fmt.Sprintf("api.default_hash_type %q is not one of perceptual, difference, wavelet, color", a.DefaultHashType))
	}
	if a.MaxTopN < 1 {
		errs = append(errs, "api.max_top_n must be at least 1")
	}
	if a.DefaultTopN < 1 || a.DefaultTopN > a.MaxTopN {
		errs = append(errs, "api.default_top_n must be between 1 and api.max_top_n")
	}
	if a.DefaultThreshold < 0 {
		errs = append(errs, "api.default_threshold must not be negative")
	}

	return errs
}

func validateResolverSettings(s *Settings) []string {
	var errs []string
	r := s.Resolver

	for _, check := range []struct {
		key, template string
		placeholders  []string
	}{
		{"resolver.modern_template", r.ModernTemplate, []string{"{set}", "{number}"}},
		{"resolver.legacy_template", r.LegacyTemplate, []string{"{set}", "{number}"}},
		{"resolver.fallback_template", r.FallbackTemplate, []string{"{id}"}},
	} {
		for _, p := range check.placeholders {
			if !strings.Contains(check.template, p) {
				errs = append(errs, fmt.Sprintf("%s must contain %s", check.key, p))
			}
		}
	}

	return errs
}

func validateBuilderSettings(s *Settings) []string {
	var errs []string
	b := s.Builder

	if b.BatchSize < 1 {
		errs = append(errs, "builder.batch_size must be at least 1")
	}
	if b.StartFrom < 0 {
		errs = append(errs, "builder.start_from must not be negative")
	}
	if b.Limit < 0 {
		errs = append(errs, "builder.limit must not be negative")
	}
	if b.FetchTimeout <= 0 {
		errs = append(errs, "builder.fetch_timeout must be positive")
	}
	if b.Delay < 0 {
		errs = append(errs, "builder.delay must not be negative")
	}

	return errs
}

func validateTCGdexSettings(s *Settings) []string {
	var errs []string
	t := s.TCGdex

	if err := validateEnvURL(t.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("tcgdex.base_url %q %v", t.BaseURL, err))
	} else if u, _ := url.Parse(t.BaseURL); u.RawQuery != "" {
		errs = append(errs, "tcgdex.base_url must not carry a query string")
	}
	if t.Language == "" {
		errs = append(errs, "tcgdex.language is required")
	}
	if t.Timeout <= 0 {
		errs = append(errs, "tcgdex.timeout must be positive")
	}
	if t.CacheTTL < 0 {
		errs = append(errs, "tcgdex.cache_ttl must not be negative")
	}

	return errs
}
