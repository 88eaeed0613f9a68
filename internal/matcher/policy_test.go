package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/errors"
)

func TestResourcePolicyResolve(t *testing.T) {
	t.Parallel()

	p := DefaultResourcePolicy()

	tests := []struct {
		id   string
		name string
		url  string
	}{
		{"base4-1", "Base4", "https://images.pokemontcg.io/base4/1_hires.png"},
		{"swsh4-81", "Swsh4", "https://assets.tcgdex.net/en/swsh4/81/high.png"},
		{"sv09-142", "Sv09", "https://assets.tcgdex.net/en/sv09/142/high.png"},
		{"sm115-7", "Sm115", "https://assets.tcgdex.net/en/sm115/7/high.png"},
		{"xy1-1", "Xy1", "https://assets.tcgdex.net/en/xy1/1/high.png"},
		{"SWSH1-2", "Swsh1", "https://images.pokemontcg.io/SWSH1/2_hires.png"},
		{"neo1-10-a", "Neo1", "https://images.pokemontcg.io/neo1/10-a_hires.png"},
		{"promo", "Promo", "https://assets.tcgdex.net/en/promo/high.png"},
		{"-5", "-5", ""},
		{"base4-", "Base4", ""},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			got := p.Resolve(tt.id)
			assert.Equal(t, tt.name, got.DisplayName)
			assert.Equal(t, tt.url, got.ResourceURL)
		})
	}
}

func TestResourcePolicyFromSettings(t *testing.T) {
	t.Parallel()

	p, err := NewResourcePolicy(conf.ResolverSettings{
		ModernPrefixes: []string{" me ", ""},
		ModernTemplate: "https://cdn.example/{set}/{number}.webp",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/me1/4.webp", p.Resolve("me1-4").ResourceURL)
	assert.Equal(t, "https://images.pokemontcg.io/sv1/4_hires.png", p.Resolve("sv1-4").ResourceURL,
		"configured prefixes replace the defaults")
	assert.Equal(t, "https://images.pokemontcg.io/ME1/4_hires.png", p.Resolve("ME1-4").ResourceURL,
		"prefixes match case-sensitively")
}

func TestResourcePolicyRejectsTemplates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings conf.ResolverSettings
	}{
		{"modern without number", conf.ResolverSettings{ModernTemplate: "https://x/{set}.png"}},
		{"legacy without set", conf.ResolverSettings{LegacyTemplate: "https://x/{number}.png"}},
		{"fallback without id", conf.ResolverSettings{FallbackTemplate: "https://x/card.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewResourcePolicy(tt.settings)
			require.Error(t, err)
			assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
		})
	}
}
