// Package textsim holds the text normalization and similarity helpers shared by
// the caption filter and the history manager.
package textsim

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns s in NFC form, lowercased and trimmed. Captions from
// different platforms mix precomposed and combining Vietnamese diacritics, so
// comparisons always go through this.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// Words splits the normalized text on whitespace into a word set.
func Words(s string) map[string]struct{} {
	fields := strings.Fields(Normalize(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Similarity is the Jaccard similarity of the word sets of a and b.
// Equal normalized strings (including two blank strings) score 1.0; a blank
// string against a non-blank one scores 0.0.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}

	wa, wb := Words(na), Words(nb)
	if len(wa) == 0 || len(wb) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			intersection++
		}
	}
	union := len(wa) + len(wb) - intersection
	return float64(intersection) / float64(union)
}

// WordCount counts whitespace separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// SpecialCharRatio is the share of runes in s that are neither letters nor digits.
// Blank input yields 1.
func SpecialCharRatio(s string) float64 {
	total, special := 0, 0
	for _, r := range s {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			special++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(special) / float64(total)
}
