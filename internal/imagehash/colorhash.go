package imagehash

import (
	"strings"

	"github.com/tcgvision/cardmatch/internal/errors"
)

// ColorBins is the number of histogram bins in a color hash: black, gray,
// white, six faint hues and six bright hues.
const ColorBins = 15

// Bin positions inside a ColorHash.
const (
	binBlack = iota
	binGray
	binWhite
	binFaintHue
	binBrightHue = binFaintHue + colorHueBins
)

const colorHueBins = 6

// ColorHash is a quantised HSV histogram. Each bin holds an integer in
// [0, 2^BinBits-1].
type ColorHash struct {
	bins    []uint8
	binBits int
}

// NewColorHash builds a color hash from raw bin values. Values wider than
// binBits are rejected.
func NewColorHash(bins []uint8, binBits int) (ColorHash, error) {
	if binBits < 1 || binBits > 8 {
		return ColorHash{}, errors.Newf("imagehash: color bin width %d outside 1..8", binBits).
			Component("imagehash").
			Category(errors.CategoryInvalidInput).
			Build()
	}
	limit := uint8(1<<binBits - 1)
	out := make([]uint8, len(bins))
	for i, b := range bins {
		if b > limit {
			return ColorHash{}, errors.Newf("imagehash: color bin %d value %d exceeds %d bits", i, b, binBits).
				Component("imagehash").
				Category(errors.CategoryInvalidInput).
				Build()
		}
		out[i] = b
	}
	return ColorHash{bins: out, binBits: binBits}, nil
}

// Bins returns a copy of the bin values.
func (c ColorHash) Bins() []uint8 {
	out := make([]uint8, len(c.bins))
	copy(out, c.bins)
	return out
}

// BinBits returns the width of one bin in bits.
func (c ColorHash) BinBits() int { return c.binBits }

// Len returns the number of bins.
func (c ColorHash) Len() int { return len(c.bins) }

// IsZero reports whether the hash carries no bins.
func (c ColorHash) IsZero() bool { return len(c.bins) == 0 }

// Equal reports whether both hashes have identical width and bins.
func (c ColorHash) Equal(other ColorHash) bool {
	if c.binBits != other.binBits || len(c.bins) != len(other.bins) {
		return false
	}
	for i := range c.bins {
		if c.bins[i] != other.bins[i] {
			return false
		}
	}
	return true
}

// Distance returns the sum of absolute per-bin differences.
func (c ColorHash) Distance(other ColorHash) (int, error) {
	if c.binBits != other.binBits || len(c.bins) != len(other.bins) {
		return 0, lengthMismatch("color", len(c.bins)*c.binBits, len(other.bins)*other.binBits)
	}
	d := 0
	for i := range c.bins {
		diff := int(c.bins[i]) - int(other.bins[i])
		if diff < 0 {
			diff = -diff
		}
		d += diff
	}
	return d, nil
}

// bit returns bit i of the concatenated bins, most significant bit of each bin first.
func (c ColorHash) bit(i int) bool {
	bin, off := i/c.binBits, i%c.binBits
	return c.bins[bin]&(1<<(c.binBits-1-off)) != 0
}

// String renders the concatenated bin values as hex.
func (c ColorHash) String() string {
	if len(c.bins) == 0 {
		return ""
	}
	return bitsToHex(len(c.bins)*c.binBits, c.bit)
}

// MarshalText implements encoding.TextMarshaler.
func (c ColorHash) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// MarshalBinary implements encoding.BinaryMarshaler: one width byte followed by the bins.
func (c ColorHash) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 1+len(c.bins))
	buf = append(buf, byte(c.binBits))
	return append(buf, c.bins...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *ColorHash) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		*c = ColorHash{}
		return nil
	}
	parsed, err := NewColorHash(data[1:], int(data[0]))
	if err != nil {
		return errors.New(err).
			Component("imagehash").
			Category(errors.CategoryDecode).
			Build()
	}
	*c = parsed
	return nil
}

// ParseColorHash parses the hex form of a ColorBins-bin hash with the given bin width.
func ParseColorHash(s string, binBits int) (ColorHash, error) {
	if binBits < 1 || binBits > 8 {
		return ColorHash{}, errors.Newf("imagehash: color bin width %d outside 1..8", binBits).
			Component("imagehash").
			Category(errors.CategoryInvalidInput).
			Build()
	}
	raw, err := hexToBits(strings.TrimSpace(s), ColorBins*binBits)
	if err != nil {
		return ColorHash{}, err
	}
	bins := make([]uint8, ColorBins)
	for i, set := range raw {
		if set {
			bins[i/binBits] |= 1 << (binBits - 1 - i%binBits)
		}
	}
	return ColorHash{bins: bins, binBits: binBits}, nil
}
