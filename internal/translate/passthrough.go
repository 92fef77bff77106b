package translate

import (
	"context"

	"github.com/landrecords/rag-engine/internal/domain"
)

// Passthrough returns its input unchanged with zero confidence. It stands in
// when no translation provider is configured.
type Passthrough struct{}

// NewPassthrough creates a passthrough translator.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) Model() string { return "passthrough" }

// Translate returns text as-is.
func (p *Passthrough) Translate(ctx context.Context, text, sourceLang, targetLang string) (domain.Translation, error) {
	if err := validateInput(text, sourceLang, targetLang); err != nil {
		return domain.Translation{}, err
	}
	return domain.Translation{Text: text, Confidence: 0}, nil
}
