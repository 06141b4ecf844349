package dataset

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// words splits a folder name on underscores, dashes and whitespace.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
}

// NormalizeKey folds a folder or manifest key for comparison, so that
// "Shehbaz Sharif", "shehbaz_sharif" and "Shehbáz-Sharif" are equal.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(words(RemoveDiacritics(s)), " "))
}

// DeriveName turns a folder name into a display name:
// "imran_khan" -> "Imran Khan".
func DeriveName(folder string) string {
	return cases.Title(language.Und).String(strings.Join(words(folder), " "))
}
