package match

import (
	"regexp"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxTitleRunes bounds the part of a title that takes part in matching.
const maxTitleRunes = 500

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	stopWords  = regexp.MustCompile(`\b(the|a|an|of|to|in|for|on|by|with|at|from)\b`)
	nonLetters = regexp.MustCompile(`[^a-z]`)
)

// fold case-folds s and removes diacritics: "Gödel" becomes "godel" and
// "Straße" becomes "strasse".
func fold(s string) string {
	// Casers and transformers keep state; build them per call.
	s = cases.Fold().String(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeTitle reduces a title to the key used for title matching:
// lower case ASCII letters only, without markup, diacritics or the most
// common English articles and prepositions.
func NormalizeTitle(title string) string {
	if title == "" {
		return ""
	}
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes])
	}
	s := fold(title)
	s = htmlTag.ReplaceAllString(s, " ")
	s = stopWords.ReplaceAllString(s, "")
	return nonLetters.ReplaceAllString(s, "")
}

// Normalize reduces a name or free text to lower case ASCII letters.
func Normalize(s string) string {
	return nonLetters.ReplaceAllString(fold(s), "")
}
