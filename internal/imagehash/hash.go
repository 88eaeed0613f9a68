// Package imagehash computes perceptual fingerprints of card images and the
// distances between them.
//
// Four fingerprints are produced per image: a DCT based perceptual hash, a
// gradient based difference hash, a Haar style wavelet hash and an HSV color
// histogram. The first three are bit vectors compared by Hamming distance; the
// color hash holds small per-bin counts compared by summed absolute difference.
package imagehash

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"

	"github.com/tcgvision/cardmatch/internal/errors"
)

// Hash is a fixed-length bit vector. Bit 0 is the first grid cell in row-major order.
// The zero value is an empty hash.
type Hash struct {
	words []uint64
	n     int
}

// NewHash returns an all-zero hash of n bits.
func NewHash(n int) Hash {
	if n < 0 {
		n = 0
	}
	return Hash{words: make([]uint64, (n+63)/64), n: n}
}

// hashFromBools packs a row-major bit grid.
func hashFromBools(bitsIn []bool) Hash {
	h := NewHash(len(bitsIn))
	for i, b := range bitsIn {
		if b {
			h.words[i>>6] |= 1 << (uint(i) & 63)
		}
	}
	return h
}

// Len returns the number of bits.
func (h Hash) Len() int { return h.n }

// IsZero reports whether the hash has no bits at all.
func (h Hash) IsZero() bool { return h.n == 0 }

// Bit returns bit i.
func (h Hash) Bit(i int) bool {
	if i < 0 || i >= h.n {
		return false
	}
	return h.words[i>>6]&(1<<(uint(i)&63)) != 0
}

// OnesCount returns the number of set bits.
func (h Hash) OnesCount() int {
	c := 0
	for _, w := range h.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Equal reports whether both hashes have the same length and bits.
func (h Hash) Equal(other Hash) bool {
	if h.n != other.n {
		return false
	}
	for i := range h.words {
		if h.words[i] != other.words[i] {
			return false
		}
	}
	return true
}

// Distance returns the Hamming distance to other. Hashes of different lengths
// cannot be compared.
func (h Hash) Distance(other Hash) (int, error) {
	if h.n != other.n {
		return 0, lengthMismatch("bit", h.n, other.n)
	}
	d := 0
	for i := range h.words {
		d += bits.OnesCount64(h.words[i] ^ other.words[i])
	}
	return d, nil
}

// String renders the hash as lowercase hex, most significant bit first,
// left-padded with zero bits to a whole number of hex digits.
func (h Hash) String() string {
	return bitsToHex(h.n, h.Bit)
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The bit length is four bits per digit.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text), 0)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler: a uvarint bit count then little-endian words.
func (h Hash) MarshalBinary() ([]byte, error) {
	buf := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen64+8*len(h.words)), uint64(h.n))
	for _, w := range h.words {
		buf = binary.LittleEndian.AppendUint64(buf, w)
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Hash) UnmarshalBinary(data []byte) error {
	n, k := binary.Uvarint(data)
	if k <= 0 {
		return errors.Newf("imagehash: corrupt binary hash header").
			Component("imagehash").
			Category(errors.CategoryDecode).
			Build()
	}
	data = data[k:]
	words := (int(n) + 63) / 64
	if len(data) != words*8 {
		return errors.Newf("imagehash: binary hash of %d bits has %d payload bytes", n, len(data)).
			Component("imagehash").
			Category(errors.CategoryDecode).
			Build()
	}
	out := NewHash(int(n))
	for i := range out.words {
		out.words[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	*h = out
	return nil
}

// ParseHash parses the hex form produced by String. nbits is the expected
// length; zero means four bits per hex digit.
func ParseHash(s string, nbits int) (Hash, error) {
	s = strings.TrimSpace(s)
	if nbits <= 0 {
		nbits = 4 * len(s)
	}
	raw, err := hexToBits(s, nbits)
	if err != nil {
		return Hash{}, err
	}
	return hashFromBools(raw), nil
}

// bitsToHex encodes n bits, most significant first, as hex digits.
func bitsToHex(n int, bit func(int) bool) string {
	if n == 0 {
		return ""
	}
	digits := (n + 3) / 4
	pad := digits*4 - n

	var sb strings.Builder
	sb.Grow(digits)
	const hexDigits = "0123456789abcdef"
	for d := range digits {
		var v byte
		for j := range 4 {
			pos := d*4 + j - pad
			v <<= 1
			if pos >= 0 && bit(pos) {
				v |= 1
			}
		}
		sb.WriteByte(hexDigits[v])
	}
	return sb.String()
}

// hexToBits decodes hex digits into n bits, rejecting set padding bits.
func hexToBits(s string, n int) ([]bool, error) {
	digits := (n + 3) / 4
	if len(s) != digits {
		return nil, errors.Newf("imagehash: hex hash has %d digits, want %d for %d bits", len(s), digits, n).
			Component("imagehash").
			Category(errors.CategoryInvalidInput).
			Build()
	}
	pad := digits*4 - n
	out := make([]bool, n)
	for d := range digits {
		v, ok := hexValue(s[d])
		if !ok {
			return nil, errors.Newf("imagehash: invalid hex digit %q", s[d]).
				Component("imagehash").
				Category(errors.CategoryInvalidInput).
				Build()
		}
		for j := range 4 {
			set := v&(8>>j) != 0
			pos := d*4 + j - pad
			if pos < 0 {
				if set {
					return nil, errors.Newf("imagehash: hex hash %q overflows %d bits", s, n).
						Component("imagehash").
						Category(errors.CategoryInvalidInput).
						Build()
				}
				continue
			}
			out[pos] = set
		}
	}
	return out, nil
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

func lengthMismatch(kind string, a, b int) error {
	return errors.New(fmt.Errorf("imagehash: cannot compare %s hashes of length %d and %d", kind, a, b)).
		Component("imagehash").
		Category(errors.CategoryHashMismatch).
		Build()
}
