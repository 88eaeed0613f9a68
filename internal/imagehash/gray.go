package imagehash

import (
	"image"
	"image/color"
	"math"
	"slices"

	"golang.org/x/image/draw"
)

// luma converts an RGB triple with ITU-R 601 weights and the same fixed-point
// rounding as PIL's "L" conversion.
func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

// nrgbaAt returns the non-premultiplied 8-bit color at (x, y).
func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n.NRGBAAt(x, y)
	}
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

// toGray converts img to an 8-bit grayscale image with origin (0, 0).
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := gray.Pix[(y-b.Min.Y)*gray.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			c := nrgbaAt(img, x, y)
			row[x-b.Min.X] = luma(c.R, c.G, c.B)
		}
	}
	return gray
}

// resizeGray scales src to w x h with Catmull-Rom resampling.
func resizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// hsv converts an RGB triple to PIL's 0..255 HSV representation.
func hsv(r, g, b uint8) (h, s, v uint8) {
	maxc := max(r, g, b)
	minc := min(r, g, b)
	if maxc == minc {
		return 0, 0, maxc
	}

	cr := float64(maxc - minc)
	sf := cr / float64(maxc)
	rc := float64(maxc-r) / cr
	gc := float64(maxc-g) / cr
	bc := float64(maxc-b) / cr

	var hf float64
	switch maxc {
	case r:
		hf = bc - gc
	case g:
		hf = 2.0 + rc - bc
	default:
		hf = 4.0 + gc - rc
	}
	hf = math.Mod(hf/6.0+1.0, 1.0)

	return clip8(hf * 255.0), clip8(sf * 255.0), maxc
}

func clip8(f float64) uint8 {
	i := int(f)
	switch {
	case i < 0:
		return 0
	case i > 255:
		return 255
	default:
		return uint8(i)
	}
}

// medianOf returns the median of values, averaging the two middle elements
// for even lengths. values is sorted in place.
func medianOf(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	slices.Sort(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
