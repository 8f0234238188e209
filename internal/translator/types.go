package translator

import (
	"context"

	"golang.org/x/text/language"
)

// Translator turns caption text into the target language.
type Translator interface {
	Translate(ctx context.Context, text string, target language.Tag) (string, error)
}

// ChatClient is the part of the LLM client the translator needs.
type ChatClient interface {
	SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

// SupportedTargets are the languages captions can be translated into.
var SupportedTargets = []language.Tag{
	language.Vietnamese,
	language.English,
	language.Japanese,
	language.Korean,
	language.Chinese,
	language.French,
	language.German,
	language.Spanish,
}

// IsSupportedTarget reports whether captions can be translated into tag.
func IsSupportedTarget(tag language.Tag) bool {
	base, _ := tag.Base()
	for _, t := range SupportedTargets {
		if b, _ := t.Base(); b == base {
			return true
		}
	}
	return false
}
