// Package textindex is an in-memory inverted index with TF-IDF ranking, one per entity kind.
package textindex

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips combining marks, so "Café Olé" and "cafe ole" compare equal
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokenize folds s and splits it on anything that is not a letter or digit.
// Apostrophes join, so "Joe's" becomes "joes".
func Tokenize(s string) []string {
	s = Fold(s)
	s = strings.NewReplacer("'", "", "’", "").Replace(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// endsInsideToken reports whether the last query token may still be typed
func endsInsideToken(q string) bool {
	if q == "" {
		return false
	}
	r := []rune(q)
	last := r[len(r)-1]
	return unicode.IsLetter(last) || unicode.IsDigit(last)
}
