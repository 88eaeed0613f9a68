package imagehash

import (
	"image"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tcgvision/cardmatch/internal/errors"
)

// Computer turns images into FingerprintSets. It is safe for concurrent use.
type Computer struct {
	cfg   Config
	shape Shape

	// QuarterWaveFFT keeps scratch space and cannot be shared between goroutines.
	dctPool sync.Pool
}

// NewComputer validates cfg and returns a Computer for it.
func NewComputer(cfg Config) (*Computer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.PerceptualSize * cfg.HighFreqFactor
	c := &Computer{cfg: cfg, shape: cfg.Shape()}
	c.dctPool.New = func() any { return fourier.NewQuarterWaveFFT(n) }
	return c, nil
}

// Config returns the sizes the computer was built with.
func (c *Computer) Config() Config { return c.cfg }

// Shape returns the shape of every FingerprintSet this computer produces.
func (c *Computer) Shape() Shape { return c.shape }

// ComputeBytes decodes data and computes its fingerprints.
func (c *Computer) ComputeBytes(data []byte) (FingerprintSet, error) {
	img, _, err := DecodeBytes(data)
	if err != nil {
		return FingerprintSet{}, err
	}
	return c.Compute(img)
}

// Compute returns the four fingerprints of img. The result depends only on
// the pixel values.
func (c *Computer) Compute(img image.Image) (FingerprintSet, error) {
	if img == nil || img.Bounds().Empty() {
		return FingerprintSet{}, errors.Newf("cannot hash an empty image").
			Component("imagehash").
			Category(errors.CategoryDecode).
			Build()
	}

	gray := toGray(img)
	return FingerprintSet{
		Perceptual: c.perceptual(gray),
		Difference: c.difference(gray),
		Wavelet:    c.wavelet(gray),
		Color:      c.color(img, gray),
	}, nil
}

// perceptual computes a 2-D DCT-II of a K*F square grid and thresholds the
// top-left KxK block against its median. The DC term does not take part in
// the median and its bit is always zero.
func (c *Computer) perceptual(gray *image.Gray) Hash {
	k := c.cfg.PerceptualSize
	n := k * c.cfg.HighFreqFactor
	small := resizeGray(gray, n, n)

	dct := c.dctPool.Get().(*fourier.QuarterWaveFFT)
	defer c.dctPool.Put(dct)

	line := make([]float64, n)
	out := make([]float64, n)

	// Row transforms; only the first k horizontal frequencies are needed.
	rows := make([]float64, n*k)
	for y := range n {
		pix := small.Pix[y*small.Stride : y*small.Stride+n]
		for x, p := range pix {
			line[x] = float64(p)
		}
		dct.CosSequence(out, line)
		copy(rows[y*k:(y+1)*k], out[:k])
	}

	block := make([]float64, k*k)
	for x := range k {
		for y := range n {
			line[y] = rows[y*k+x]
		}
		dct.CosSequence(out, line)
		for y := range k {
			block[y*k+x] = out[y]
		}
	}

	ac := make([]float64, len(block)-1)
	copy(ac, block[1:])
	med := medianOf(ac)

	bitsOut := make([]bool, len(block))
	for i := 1; i < len(block); i++ {
		bitsOut[i] = block[i] > med
	}
	return hashFromBools(bitsOut)
}

// difference compares horizontally adjacent pixels of an (N+1) x N grid.
func (c *Computer) difference(gray *image.Gray) Hash {
	n := c.cfg.DifferenceSize
	small := resizeGray(gray, n+1, n)

	bitsOut := make([]bool, 0, n*n)
	for y := range n {
		row := small.Pix[y*small.Stride:]
		for x := range n {
			bitsOut = append(bitsOut, row[x] > row[x+1])
		}
	}
	return hashFromBools(bitsOut)
}

// wavelet average-pools a power-of-two square grid down to NxN and
// thresholds against the median. Removing the coarsest Haar approximation
// only shifts every pooled value by the same amount, so it is skipped.
func (c *Computer) wavelet(gray *image.Gray) Hash {
	n := c.cfg.WaveletSize
	b := gray.Bounds()
	side := min(b.Dx(), b.Dy())
	scale := 1 << int(math.Floor(math.Log2(float64(side))))
	scale = max(scale, n)

	small := resizeGray(gray, scale, scale)
	step := scale / n

	pooled := make([]float64, n*n)
	norm := 255.0 * float64(step*step)
	for by := range n {
		for bx := range n {
			sum := 0
			for y := by * step; y < (by+1)*step; y++ {
				row := small.Pix[y*small.Stride:]
				for x := bx * step; x < (bx+1)*step; x++ {
					sum += int(row[x])
				}
			}
			pooled[by*n+bx] = float64(sum) / norm
		}
	}

	sorted := make([]float64, len(pooled))
	copy(sorted, pooled)
	med := medianOf(sorted)

	bitsOut := make([]bool, len(pooled))
	for i, v := range pooled {
		bitsOut[i] = v > med
	}
	return hashFromBools(bitsOut)
}

// Color hash thresholds on PIL's 0..255 scales.
const (
	blackLumaMax     = 256 / 8     // luma below this is black
	whiteLumaMin     = 224         // luma at or above this with low saturation is white
	graySaturation   = 256 / 3     // saturation below this is achromatic
	faintSaturation  = 256 * 2 / 3 // saturation below this is a faint color
	hueBinWidthScale = float64(colorHueBins) / 255.0
)

// color builds the HSV histogram over every pixel of img.
func (c *Computer) color(img image.Image, gray *image.Gray) ColorHash {
	b := img.Bounds()

	var (
		black, white, grayCount int
		colorful                int
		faint, bright           [colorHueBins]int
	)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		lumaRow := gray.Pix[(y-b.Min.Y)*gray.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			l := lumaRow[x-b.Min.X]
			if l < blackLumaMax {
				black++
				continue
			}
			px := nrgbaAt(img, x, y)
			h, s, _ := hsv(px.R, px.G, px.B)
			if s < graySaturation {
				if l >= whiteLumaMin {
					white++
				} else {
					grayCount++
				}
				continue
			}
			colorful++
			bin := min(int(float64(h)*hueBinWidthScale), colorHueBins-1)
			// Saturation exactly at the boundary counts toward the total
			// but lands in neither histogram.
			switch {
			case s < faintSaturation:
				faint[bin]++
			case s > faintSaturation:
				bright[bin]++
			}
		}
	}

	total := float64(b.Dx() * b.Dy())
	hueTotal := float64(max(colorful, 1))
	levels := float64(int(1) << c.cfg.ColorBinBits)
	quantize := func(count int, of float64) uint8 {
		v := math.Floor(float64(count) / of * levels)
		return uint8(min(v, levels-1))
	}

	bins := make([]uint8, ColorBins)
	bins[binBlack] = quantize(black, total)
	bins[binGray] = quantize(grayCount, total)
	bins[binWhite] = quantize(white, total)
	for i := range colorHueBins {
		bins[binFaintHue+i] = quantize(faint[i], hueTotal)
		bins[binBrightHue+i] = quantize(bright[i], hueTotal)
	}
	return ColorHash{bins: bins, binBits: c.cfg.ColorBinBits}
}
