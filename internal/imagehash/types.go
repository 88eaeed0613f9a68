package imagehash

import (
	"fmt"
	"strings"

	"github.com/tcgvision/cardmatch/internal/errors"
)

// HashType selects one of the four fingerprints of a FingerprintSet.
type HashType string

const (
	Perceptual HashType = "perceptual"
	Difference HashType = "difference"
	Wavelet    HashType = "wavelet"
	Color      HashType = "color"
)

// DefaultHashType is used when a caller does not name one.
const DefaultHashType = Perceptual

// HashTypes lists every supported type in display order.
var HashTypes = []HashType{Perceptual, Difference, Wavelet, Color}

// ParseHashType accepts a type name case-insensitively. An empty string
// selects DefaultHashType.
func ParseHashType(s string) (HashType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return DefaultHashType, nil
	}
	for _, t := range HashTypes {
		if string(t) == name {
			return t, nil
		}
	}
	return "", errors.Newf("invalid hash type %q, expected one of perceptual, difference, wavelet, color", s).
		Component("imagehash").
		Category(errors.CategoryInvalidHashType).
		Context("hash_type", s).
		Build()
}

// Valid reports whether t is one of the supported types.
func (t HashType) Valid() bool {
	switch t {
	case Perceptual, Difference, Wavelet, Color:
		return true
	default:
		return false
	}
}

// FingerprintSet holds the four fingerprints computed for one image.
type FingerprintSet struct {
	Perceptual Hash
	Difference Hash
	Wavelet    Hash
	Color      ColorHash
}

// HashStrings is the display form of a FingerprintSet.
type HashStrings struct {
	Perceptual string `json:"perceptual"`
	Difference string `json:"difference"`
	Wavelet    string `json:"wavelet"`
	Color      string `json:"color"`
}

// Strings returns the hex form of each fingerprint.
func (f FingerprintSet) Strings() HashStrings {
	return HashStrings{
		Perceptual: f.Perceptual.String(),
		Difference: f.Difference.String(),
		Wavelet:    f.Wavelet.String(),
		Color:      f.Color.String(),
	}
}

// Equal reports whether all four fingerprints are identical.
func (f FingerprintSet) Equal(other FingerprintSet) bool {
	return f.Perceptual.Equal(other.Perceptual) &&
		f.Difference.Equal(other.Difference) &&
		f.Wavelet.Equal(other.Wavelet) &&
		f.Color.Equal(other.Color)
}

// Distance compares the fingerprint of the given type.
func (f FingerprintSet) Distance(other FingerprintSet, t HashType) (int, error) {
	switch t {
	case Perceptual:
		return f.Perceptual.Distance(other.Perceptual)
	case Difference:
		return f.Difference.Distance(other.Difference)
	case Wavelet:
		return f.Wavelet.Distance(other.Wavelet)
	case Color:
		return f.Color.Distance(other.Color)
	default:
		return 0, errors.Newf("invalid hash type %q", t).
			Component("imagehash").
			Category(errors.CategoryInvalidHashType).
			Context("hash_type", string(t)).
			Build()
	}
}

// Shape returns the vector lengths of f.
func (f FingerprintSet) Shape() Shape {
	return Shape{
		PerceptualBits: f.Perceptual.Len(),
		DifferenceBits: f.Difference.Len(),
		WaveletBits:    f.Wavelet.Len(),
		ColorBins:      f.Color.Len(),
		ColorBinBits:   f.Color.BinBits(),
	}
}

// ParseHashStrings parses a display form back into fingerprints of the given shape.
func ParseHashStrings(hs HashStrings, shape Shape) (FingerprintSet, error) {
	var (
		f   FingerprintSet
		err error
	)
	if f.Perceptual, err = ParseHash(hs.Perceptual, shape.PerceptualBits); err != nil {
		return FingerprintSet{}, fmt.Errorf("perceptual: %w", err)
	}
	if f.Difference, err = ParseHash(hs.Difference, shape.DifferenceBits); err != nil {
		return FingerprintSet{}, fmt.Errorf("difference: %w", err)
	}
	if f.Wavelet, err = ParseHash(hs.Wavelet, shape.WaveletBits); err != nil {
		return FingerprintSet{}, fmt.Errorf("wavelet: %w", err)
	}
	if f.Color, err = ParseColorHash(hs.Color, shape.ColorBinBits); err != nil {
		return FingerprintSet{}, fmt.Errorf("color: %w", err)
	}
	return f, nil
}

// Shape is the set of vector lengths every fingerprint in a catalog shares.
type Shape struct {
	PerceptualBits int
	DifferenceBits int
	WaveletBits    int
	ColorBins      int
	ColorBinBits   int
}

func (s Shape) String() string {
	return fmt.Sprintf("perceptual=%d difference=%d wavelet=%d color=%dx%d",
		s.PerceptualBits, s.DifferenceBits, s.WaveletBits, s.ColorBins, s.ColorBinBits)
}

// Validate checks that f has exactly this shape.
func (s Shape) Validate(f FingerprintSet) error {
	got := f.Shape()
	if got == s {
		return nil
	}
	return errors.Newf("fingerprint shape %s does not match catalog shape %s", got, s).
		Component("imagehash").
		Category(errors.CategoryHashMismatch).
		Build()
}

// Config holds the hash sizes.
type Config struct {
	PerceptualSize int // K: side of the kept DCT block
	HighFreqFactor int // F: the DCT runs on a K*F grid
	DifferenceSize int
	WaveletSize    int // power of two
	ColorBinBits   int
}

// DefaultConfig matches the sizes used to build the reference catalog.
func DefaultConfig() Config {
	return Config{
		PerceptualSize: 32,
		HighFreqFactor: 8,
		DifferenceSize: 32,
		WaveletSize:    32,
		ColorBinBits:   8,
	}
}

// Shape returns the fingerprint shape this configuration produces.
func (c Config) Shape() Shape {
	return Shape{
		PerceptualBits: c.PerceptualSize * c.PerceptualSize,
		DifferenceBits: c.DifferenceSize * c.DifferenceSize,
		WaveletBits:    c.WaveletSize * c.WaveletSize,
		ColorBins:      ColorBins,
		ColorBinBits:   c.ColorBinBits,
	}
}

// Validate rejects sizes the hash functions cannot work with.
func (c Config) Validate() error {
	var problems []string
	if c.PerceptualSize < 2 || c.HighFreqFactor < 1 {
		problems = append(problems, "perceptual size must be >= 2 and high frequency factor >= 1")
	}
	if c.DifferenceSize < 2 {
		problems = append(problems, "difference size must be >= 2")
	}
	if c.WaveletSize < 2 || c.WaveletSize&(c.WaveletSize-1) != 0 {
		problems = append(problems, "wavelet size must be a power of two >= 2")
	}
	if c.ColorBinBits < 1 || c.ColorBinBits > 8 {
		problems = append(problems, "color bin bits must be within 1..8")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("imagehash: invalid configuration: %s", strings.Join(problems, "; ")).
		Component("imagehash").
		Category(errors.CategoryConfiguration).
		Build()
}
