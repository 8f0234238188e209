package textsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "hello world", b: "hello world", want: 1},
		{name: "case and space insensitive", a: "  Hello World ", b: "hello world", want: 1},
		{name: "both empty", a: "", b: "   ", want: 1},
		{name: "one empty", a: "", b: "hello", want: 0},
		{name: "disjoint", a: "alpha beta", b: "gamma delta", want: 0},
		{name: "half overlap", a: "a b c", b: "b c d", want: 0.5},
		{name: "word order ignored", a: "one two three", b: "three two one", want: 1},
		{name: "duplicate words collapse", a: "go go go", b: "go", want: 1},
		{name: "composed vs decomposed diacritics", a: "xin ch\u00e0o", b: "xin cha\u0300o", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarity_SelfIsOne(t *testing.T) {
	for _, s := range []string{"a", "hello world testing", "Tôi đang nói tiếng Việt", "!!! ???"} {
		assert.Equal(t, 1.0, Similarity(s, s), s)
	}
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount("   "))
	assert.Equal(t, 1, WordCount("hello"))
	assert.Equal(t, 3, WordCount(" hello \t big\nworld "))
}

func TestSpecialCharRatio(t *testing.T) {
	assert.Equal(t, 1.0, SpecialCharRatio(""))
	assert.Equal(t, 1.0, SpecialCharRatio("...!!!"))
	assert.Equal(t, 0.0, SpecialCharRatio("abc123"))
	// Spaces count as special characters.
	assert.InDelta(t, 1.0/3, SpecialCharRatio("a b"), 1e-9)
	// Vietnamese letters with diacritics are letters, not noise.
	assert.Less(t, SpecialCharRatio("được không"), 0.2)
}
