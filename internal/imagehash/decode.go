package imagehash

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/tcgvision/cardmatch/internal/errors"
)

// MaxPixels bounds the decoded image area so a hostile header cannot force a
// huge allocation.
const MaxPixels = 64 << 20

// Decode reads an image in any registered format.
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.New(err).
			Component("imagehash").
			Category(errors.CategoryDecode).
			Context("operation", "read_image").
			Build()
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory image. Bytes no registered decoder
// recognizes, and corrupt or empty images, are decode errors; a known format
// using a mode its decoder cannot handle is unsupported.
func DecodeBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", errors.Newf("image data is empty").
			Component("imagehash").
			Category(errors.CategoryInvalidInput).
			Build()
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", classifyDecodeError(err, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, errors.Newf("image has zero size %dx%d", cfg.Width, cfg.Height).
			Component("imagehash").
			Category(errors.CategoryDecode).
			Context("format", format).
			Build()
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, format, errors.Newf("image of %dx%d pixels exceeds the %d pixel limit", cfg.Width, cfg.Height, MaxPixels).
			Component("imagehash").
			Category(errors.CategoryInvalidInput).
			Context("format", format).
			Build()
	}
	if pal, ok := cfg.ColorModel.(color.Palette); ok && len(pal) == 0 {
		return nil, format, unsupportedImage("paletted image without a palette", format)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, classifyDecodeError(err, format)
	}
	if img.Bounds().Empty() {
		return nil, format, errors.Newf("decoded image is empty").
			Component("imagehash").
			Category(errors.CategoryDecode).
			Context("format", format).
			Build()
	}
	return img, format, nil
}

func classifyDecodeError(err error, format string) error {
	var (
		jpegErr jpeg.UnsupportedError
		pngErr  png.UnsupportedError
		tiffErr tiff.UnsupportedError
	)
	switch {
	case errors.As(err, &jpegErr), errors.As(err, &pngErr), errors.As(err, &tiffErr), errors.Is(err, bmp.ErrUnsupported):
		return unsupportedImage(err.Error(), format)
	case errors.Is(err, image.ErrFormat):
		return errors.New(err).
			Component("imagehash").
			Category(errors.CategoryDecode).
			Context("operation", "detect_format").
			Build()
	}
	return errors.New(err).
		Component("imagehash").
		Category(errors.CategoryDecode).
		Context("format", format).
		Build()
}

func unsupportedImage(msg, format string) error {
	return errors.Newf("unsupported image: %s", msg).
		Component("imagehash").
		Category(errors.CategoryUnsupportedImage).
		Context("format", format).
		Build()
}
