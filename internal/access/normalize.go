package access

import (
	"strings"
)

// Alias maps any hostel name containing Match (case-insensitive) to
// Canonical.
type Alias struct {
	Match     string
	Canonical string
}

type Normalizer struct {
	aliases []Alias
}

func DefaultAliases() []Alias {
	return []Alias{
		{Match: "malaivya", Canonical: "Malaivya Bhavan"},
		{Match: "malaviya", Canonical: "Malaivya Bhavan"},
		{Match: "meera", Canonical: "Meera Bhavan"},
		{Match: "ganga", Canonical: "Ganga Bhavan"},
	}
}

func NewNormalizer(aliases []Alias) Normalizer {
	cleaned := make([]Alias, 0, len(aliases))
	for _, alias := range aliases {
		match := strings.ToLower(strings.TrimSpace(alias.Match))
		canonical := strings.TrimSpace(alias.Canonical)
		if match == "" || canonical == "" {
			continue
		}
		cleaned = append(cleaned, Alias{Match: match, Canonical: canonical})
	}
	return Normalizer{aliases: cleaned}
}

// ParseAliases reads "match=Canonical;match=Canonical". Malformed entries
// are skipped.
func ParseAliases(raw string) []Alias {
	var aliases []Alias
	for _, entry := range strings.Split(raw, ";") {
		match, canonical, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		match = strings.TrimSpace(match)
		canonical = strings.TrimSpace(canonical)
		if match == "" || canonical == "" {
			continue
		}
		aliases = append(aliases, Alias{Match: match, Canonical: canonical})
	}
	return aliases
}

// Normalize returns the canonical spelling of a hostel name. Names that
// match no alias come back trimmed.
func (n Normalizer) Normalize(name string) string {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(trimmed)
	for _, alias := range n.aliases {
		if strings.Contains(lower, alias.Match) {
			return alias.Canonical
		}
	}
	return trimmed
}
