package translator

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/live-caption-history/internal/termmap"
	"github.com/MimeLyc/live-caption-history/pkg/log"
)

// llmTranslator translates single captions through a chat completion model.
type llmTranslator struct {
	client   ChatClient
	glossary termmap.TermMap
}

type Option func(*llmTranslator)

// WithTermMap pins the translation of glossary terms found in a caption.
func WithTermMap(tm termmap.TermMap) Option {
	return func(t *llmTranslator) {
		t.glossary = tm
	}
}

func NewLLMTranslator(client ChatClient, opts ...Option) Translator {
	t := &llmTranslator{client: client}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *llmTranslator) Translate(ctx context.Context, text string, target language.Tag) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if !IsSupportedTarget(target) {
		return "", fmt.Errorf("unsupported target language %s", target)
	}

	terms := termmap.Match(t.glossary, []string{text})
	if !terms.Empty() {
		log.Debug("Pinning %d glossary terms for %q", len(terms.Matched), preview(text))
	}
	reply, err := t.client.SimpleChat(ctx, text, buildSystemPrompt(target, terms))
	if err != nil {
		return "", fmt.Errorf("translate caption: %w", err)
	}
	return cleanOutput(reply), nil
}

func buildSystemPrompt(target language.Tag, terms termmap.MatchResult) string {
	prompt := fmt.Sprintf(
		"You are a professional translator. Translate the following live meeting caption into %s. "+
			"Detect the source language yourself. Only return the translated text, no explanations or additional text.",
		display.English.Tags().Name(target),
	)
	if terms.Empty() {
		return prompt
	}
	return prompt + "\n\nAlways translate these terms exactly as given:\n" + terms.PromptLines()
}

// cleanOutput strips whitespace and a pair of wrapping quotes some models add.
func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"`, "“", "'"} {
		closing := q
		if q == "“" {
			closing = "”"
		}
		if len(s) >= len(q)+len(closing) && strings.HasPrefix(s, q) && strings.HasSuffix(s, closing) {
			return strings.TrimSpace(s[len(q) : len(s)-len(closing)])
		}
	}
	return s
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 30 {
		return s
	}
	return string(r[:30]) + "..."
}
