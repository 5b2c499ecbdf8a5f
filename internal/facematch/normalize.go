package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacritics strips combining marks after canonical decomposition.
var diacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	result, _, err := transform.String(diacritics, s)
	if err != nil {
		return s
	}
	return result
}

// NormalizePersonName folds a display name for comparison: no diacritics,
// lowercase, dashes and underscores treated as spaces, runs of whitespace
// collapsed to a single space.
func NormalizePersonName(name string) string {
	name = strings.ToLower(RemoveDiacritics(name))
	name = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return ' '
		}
		return r
	}, name)
	return strings.Join(strings.Fields(name), " ")
}

// NameContains reports whether name contains query after both are normalized.
// An empty query matches every name.
func NameContains(name, query string) bool {
	return strings.Contains(NormalizePersonName(name), NormalizePersonName(query))
}
