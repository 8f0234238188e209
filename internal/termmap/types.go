// Package termmap holds the meeting glossary: fixed translations for names and
// domain terms that the translation model must not improvise.
package termmap

import (
	"fmt"
	"slices"
	"strings"
)

// TermMap maps source terms to their required translation.
type TermMap map[string]string

// MatchResult holds terms that matched against input texts.
type MatchResult struct {
	Matched TermMap
}

// Empty reports whether nothing matched.
func (r MatchResult) Empty() bool {
	return len(r.Matched) == 0
}

// PromptLines renders the matched terms as "source → target" lines, sorted
// by source term.
func (r MatchResult) PromptLines() string {
	terms := make([]string, 0, len(r.Matched))
	for source := range r.Matched {
		terms = append(terms, source)
	}
	slices.Sort(terms)

	var b strings.Builder
	for _, source := range terms {
		fmt.Fprintf(&b, "- %s → %s\n", source, r.Matched[source])
	}
	return b.String()
}
