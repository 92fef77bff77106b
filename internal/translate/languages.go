// Package translate provides the translation collaborators used by the
// pipeline: an LLM chat-completions client, a land-record glossary and a
// passthrough.
package translate

import (
	"fmt"
	"strings"

	"github.com/landrecords/rag-engine/internal/domain"
)

var languageNames = map[string]string{
	"ur": "Urdu",
	"hi": "Hindi",
	"en": "English",
}

// LanguageName returns the display name for a language code.
func LanguageName(code string) (string, bool) {
	name, ok := languageNames[strings.ToLower(code)]
	return name, ok
}

// ValidatePair rejects unknown codes and identical source/target languages.
// The returned error is permanent.
func ValidatePair(sourceLang, targetLang string) error {
	if _, ok := LanguageName(sourceLang); !ok {
		return domain.TranslationError(fmt.Sprintf("unsupported source language: %q", sourceLang), nil).AsPermanent()
	}
	if _, ok := LanguageName(targetLang); !ok {
		return domain.TranslationError(fmt.Sprintf("unsupported target language: %q", targetLang), nil).AsPermanent()
	}
	if strings.EqualFold(sourceLang, targetLang) {
		return domain.TranslationError(fmt.Sprintf("source and target language are both %q", sourceLang), nil).AsPermanent()
	}
	return nil
}

func validateInput(text, sourceLang, targetLang string) error {
	if strings.TrimSpace(text) == "" {
		return domain.TranslationError("empty input text", nil).AsPermanent()
	}
	return ValidatePair(sourceLang, targetLang)
}
