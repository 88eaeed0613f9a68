package imagehash

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tcgvision/cardmatch/internal/conf"
)

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultConfig(), ConfigFromSettings(conf.HashSettings{}))

	got := ConfigFromSettings(conf.HashSettings{PerceptualSize: 16, WaveletSize: 16, ColorBinBits: 3})
	assert.Equal(t, Config{
		PerceptualSize: 16,
		HighFreqFactor: 8,
		DifferenceSize: 32,
		WaveletSize:    16,
		ColorBinBits:   3,
	}, got)
	assert.NoError(t, got.Validate())
}
