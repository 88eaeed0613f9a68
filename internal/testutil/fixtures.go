package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/bits"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tcgvision/cardmatch/internal/imagehash"
)

// SmallConfig produces 64-bit hashes and 4-bit color bins, so fixtures fit
// in one uint64 per hash.
func SmallConfig() imagehash.Config {
	return imagehash.Config{
		PerceptualSize: 8,
		HighFreqFactor: 4,
		DifferenceSize: 8,
		WaveletSize:    8,
		ColorBinBits:   4,
	}
}

// SmallShape is the shape of SmallConfig.
func SmallShape() imagehash.Shape { return SmallConfig().Shape() }

// Ones returns a word with the low k bits set, so its Hamming distance to
// zero is k.
func Ones(k int) uint64 {
	if k >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(k) - 1
}

// Fingerprints builds a SmallShape set whose perceptual, difference and
// wavelet hashes are p, d and w. The color hash is all zero.
func Fingerprints(t testing.TB, p, d, w uint64) imagehash.FingerprintSet {
	t.Helper()
	fp, err := imagehash.ParseHashStrings(imagehash.HashStrings{
		Perceptual: fmt.Sprintf("%016x", p),
		Difference: fmt.Sprintf("%016x", d),
		Wavelet:    fmt.Sprintf("%016x", w),
		Color:      strings.Repeat("0", imagehash.ColorBins),
	}, SmallShape())
	require.NoError(t, err)
	return fp
}

// PerceptualOnly is Fingerprints with the same word for every bit hash.
func PerceptualOnly(t testing.TB, p uint64) imagehash.FingerprintSet {
	t.Helper()
	return Fingerprints(t, p, p, p)
}

// Distance returns the Hamming distance between two words.
func Distance(a, b uint64) int { return bits.OnesCount64(a ^ b) }

// CardImage draws a deterministic synthetic card. Different seeds give
// visibly different layouts.
func CardImage(seed, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8((x*(seed%7+1) + y*(seed%5+2) + seed*37) % 256)
			stripe := uint8(0)
			if (x/(8+seed%9)+y/(6+seed%4))%2 == 0 {
				stripe = 90
			}
			img.Set(x, y, color.NRGBA{R: v, G: v ^ stripe, B: uint8(seed * 53), A: 255})
		}
	}
	return img
}

// PNG encodes img.
func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// CardPNG is PNG(CardImage(seed, 120, 168)).
func CardPNG(t testing.TB, seed int) []byte {
	t.Helper()
	return PNG(t, CardImage(seed, 120, 168))
}
