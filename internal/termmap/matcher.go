package termmap

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match filters the term map to the terms that appear as whole words in the
// given texts. Matching is case-sensitive, which suits proper nouns.
func Match(tm TermMap, texts []string) MatchResult {
	matched := make(TermMap)

	for source, target := range tm {
		for _, text := range texts {
			if containsWord(text, source, false) {
				matched[source] = target
				break
			}
		}
	}

	return MatchResult{Matched: matched}
}

// ContainsWordFold reports whether term occurs in text as a whole word,
// ignoring case.
func ContainsWordFold(text, term string) bool {
	return containsWord(text, term, true)
}

func containsWord(text, term string, fold bool) bool {
	if term == "" {
		return false
	}
	if fold {
		text = strings.ToLower(text)
		term = strings.ToLower(term)
	}

	offset := 0
	for {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(term)
		if isBoundaryBefore(text, start) && isBoundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isBoundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func isBoundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
