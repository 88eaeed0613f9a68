package tcgdex

import (
	"strings"
	"time"

	"github.com/antonholmquist/jason"
)

// releaseDateLayout is the date format of the releaseDate field.
const releaseDateLayout = "2006-01-02"

func parseSets(data []byte) ([]SetSummary, error) {
	v, err := jason.NewValueFromBytes(data)
	if err != nil {
		return nil, err
	}
	objs, err := v.ObjectArray()
	if err != nil {
		return nil, err
	}

	sets := make([]SetSummary, 0, len(objs))
	for _, o := range objs {
		id, err := o.GetString("id")
		if err != nil || id == "" {
			continue
		}
		s := SetSummary{ID: id, Name: id}
		if name, err := o.GetString("name"); err == nil && name != "" {
			s.Name = name
		}
		s.ReleaseDate = parseReleaseDate(o)
		if total, err := o.GetInt64("cardCount", "total"); err == nil {
			s.CardCount = int(total)
		}
		sets = append(sets, s)
	}
	return sets, nil
}

func parseSetDetail(setID string, data []byte) (*setDetail, error) {
	o, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return nil, err
	}

	detail := &setDetail{releaseDate: parseReleaseDate(o)}
	cards, err := o.GetObjectArray("cards")
	if err != nil {
		// A set without a card array has no cards yet.
		return detail, nil
	}

	detail.cards = make([]CardSummary, 0, len(cards))
	for _, c := range cards {
		id, err := c.GetString("id")
		if err != nil || id == "" {
			continue
		}
		card := CardSummary{ID: id, SetID: setID}
		card.LocalID, _ = c.GetString("localId")
		card.Name, _ = c.GetString("name")
		if img, err := c.GetValue("image"); err == nil {
			card.ImageURL = imageURL(img)
		}
		detail.cards = append(detail.cards, card)
	}
	return detail, nil
}

// imageURL picks the best image of a card. TCGdex gives a base URL string
// that takes a quality suffix; other sources give an object of tiers.
func imageURL(v *jason.Value) string {
	if s, err := v.String(); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return ""
		}
		if hasImageExtension(s) {
			return s
		}
		return strings.TrimRight(s, "/") + imageQualitySuffix
	}

	o, err := v.Object()
	if err != nil {
		return ""
	}
	for _, tier := range []string{"large", "high", "small", "low"} {
		if s, err := o.GetString(tier); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func hasImageExtension(u string) bool {
	lower := strings.ToLower(u)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func parseReleaseDate(o *jason.Object) time.Time {
	s, err := o.GetString("releaseDate")
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(releaseDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
