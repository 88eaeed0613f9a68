package imagehash

import "github.com/tcgvision/cardmatch/internal/conf"

// ConfigFromSettings converts the hash settings section to a Config.
// Zero fields keep their defaults.
func ConfigFromSettings(s conf.HashSettings) Config {
	cfg := DefaultConfig()
	if s.PerceptualSize > 0 {
		cfg.PerceptualSize = s.PerceptualSize
	}
	if s.HighFreqFactor > 0 {
		cfg.HighFreqFactor = s.HighFreqFactor
	}
	if s.DifferenceSize > 0 {
		cfg.DifferenceSize = s.DifferenceSize
	}
	if s.WaveletSize > 0 {
		cfg.WaveletSize = s.WaveletSize
	}
	if s.ColorBinBits > 0 {
		cfg.ColorBinBits = s.ColorBinBits
	}
	return cfg
}
