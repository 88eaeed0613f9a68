package matcher

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/errors"
)

// Template placeholders.
const (
	placeholderSet    = "{set}"
	placeholderNumber = "{number}"
	placeholderID     = "{id}"
)

// Default presentation table.
const (
	DefaultModernTemplate   = "https://assets.tcgdex.net/en/{set}/{number}/high.png"
	DefaultLegacyTemplate   = "https://images.pokemontcg.io/{set}/{number}_hires.png"
	DefaultFallbackTemplate = "https://assets.tcgdex.net/en/{id}/high.png"
)

// DefaultModernPrefixes are the set prefixes served by the modern template.
var DefaultModernPrefixes = []string{"sv", "swsh", "sm", "xy"}

// Presentation is what a caller shows for a recognized card.
type Presentation struct {
	DisplayName string
	ResourceURL string
}

// ResourcePolicy derives a display name and an image URL from a card id of
// the form <set>-<number>. The mapping is a heuristic; ids it cannot split
// cleanly get an empty URL rather than a guess.
type ResourcePolicy struct {
	modernPrefixes []string
	modern         string
	legacy         string
	fallback       string
}

// DefaultResourcePolicy returns the built-in table.
func DefaultResourcePolicy() *ResourcePolicy {
	p, _ := NewResourcePolicy(conf.ResolverSettings{})
	return p
}

// NewResourcePolicy builds a policy from settings. Empty fields use defaults.
// Templates missing their placeholders are rejected.
func NewResourcePolicy(s conf.ResolverSettings) (*ResourcePolicy, error) {
	p := &ResourcePolicy{
		modernPrefixes: DefaultModernPrefixes,
		modern:         DefaultModernTemplate,
		legacy:         DefaultLegacyTemplate,
		fallback:       DefaultFallbackTemplate,
	}
	if len(s.ModernPrefixes) > 0 {
		p.modernPrefixes = nil
		for _, prefix := range s.ModernPrefixes {
			if prefix = strings.TrimSpace(prefix); prefix != "" {
				p.modernPrefixes = append(p.modernPrefixes, prefix)
			}
		}
	}
	if s.ModernTemplate != "" {
		p.modern = s.ModernTemplate
	}
	if s.LegacyTemplate != "" {
		p.legacy = s.LegacyTemplate
	}
	if s.FallbackTemplate != "" {
		p.fallback = s.FallbackTemplate
	}

	var problems []string
	for _, t := range []struct{ name, tmpl string }{{"modern", p.modern}, {"legacy", p.legacy}} {
		if !strings.Contains(t.tmpl, placeholderSet) || !strings.Contains(t.tmpl, placeholderNumber) {
			problems = append(problems, t.name+" template must contain "+placeholderSet+" and "+placeholderNumber)
		}
	}
	if !strings.Contains(p.fallback, placeholderID) {
		problems = append(problems, "fallback template must contain "+placeholderID)
	}
	if len(problems) > 0 {
		return nil, errors.Newf("invalid resolver templates: %s", strings.Join(problems, "; ")).
			Component("matcher").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return p, nil
}

// Resolve maps a card id to its presentation.
func (p *ResourcePolicy) Resolve(id string) Presentation {
	set, number, found := strings.Cut(id, "-")
	if !found {
		return Presentation{
			DisplayName: p.displayName(id),
			ResourceURL: strings.ReplaceAll(p.fallback, placeholderID, id),
		}
	}

	pres := Presentation{DisplayName: p.displayName(set)}
	if set == "" {
		pres.DisplayName = p.displayName(id)
	}
	if set == "" || number == "" {
		return pres
	}

	tmpl := p.legacy
	if p.isModern(set) {
		tmpl = p.modern
	}
	pres.ResourceURL = strings.NewReplacer(placeholderSet, set, placeholderNumber, number).Replace(tmpl)
	return pres
}

// isModern matches prefixes case-sensitively; TCGdex set ids are lower case.
func (p *ResourcePolicy) isModern(set string) bool {
	for _, prefix := range p.modernPrefixes {
		if strings.HasPrefix(set, prefix) {
			return true
		}
	}
	return false
}

// displayName upper-cases the first letter and lower-cases the rest.
// Casers keep state, so each call gets its own.
func (p *ResourcePolicy) displayName(s string) string {
	return cases.Title(language.Und).String(s)
}
