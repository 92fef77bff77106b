package jobs

import (
	"context"
	"fmt"
	"math"

	"github.com/landrecords/rag-engine/internal/search"
)

const (
	ocrSecondsPerPage         = 2.0
	translationSecondsPerPage = 1.5

	// DefaultContextChunks is the number of hits TranslationContext returns
	// when the caller does not say.
	DefaultContextChunks = 3
)

// Estimate is a rough processing-time forecast for a document.
type Estimate struct {
	PageCount           int     `json:"page_count"`
	ChunkCount          int     `json:"chunk_count"`
	EstimatedSeconds    float64 `json:"estimated_time_seconds"`
	EstimatedFormatted  string  `json:"estimated_time_formatted"`
	IncludesTranslation bool    `json:"includes_translation"`
}

// Estimate opens the document to count its pages and forecasts how long
// OCR and, optionally, translation will take.
func (m *Manager) Estimate(ctx context.Context, sourceRef string, translate bool) (*Estimate, error) {
	if m.validator != nil {
		if err := m.validator.ValidateSource(sourceRef); err != nil {
			return nil, err
		}
	}

	pages, err := m.extractor.PageCount(ctx, sourceRef)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}

	seconds := float64(pages) * ocrSecondsPerPage
	if translate {
		seconds += float64(pages) * translationSecondsPerPage
	}
	seconds = math.Round(seconds*10) / 10

	return &Estimate{
		PageCount:           pages,
		ChunkCount:          m.planner.Count(pages),
		EstimatedSeconds:    seconds,
		EstimatedFormatted:  FormatSeconds(seconds),
		IncludesTranslation: translate,
	}, nil
}

// FormatSeconds renders a duration as "N seconds", "M min S sec" or
// "H hr M min".
func FormatSeconds(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", int(seconds))
	case seconds < 3600:
		total := int(seconds)
		return fmt.Sprintf("%d min %d sec", total/60, total%60)
	default:
		total := int(seconds)
		return fmt.Sprintf("%d hr %d min", total/3600, (total%3600)/60)
	}
}

// TranslationHit is one chunk returned by a translation lookup.
type TranslationHit struct {
	ChunkID    string  `json:"chunk_id"`
	Original   string  `json:"original"`
	Translated string  `json:"translated"`
	Confidence float64 `json:"confidence"`
	Relevance  float64 `json:"relevance"`
}

// TranslationLookup is the answer to a RAG-style translation query.
type TranslationLookup struct {
	Query        string           `json:"query"`
	Translations []TranslationHit `json:"translations"`
	Context      []string         `json:"context"`
}

// TranslationContext finds the chunks most relevant to query and returns
// their translations together with the original texts as context.
func (m *Manager) TranslationContext(query string, k int) TranslationLookup {
	if k <= 0 {
		k = DefaultContextChunks
	}

	hits := m.index.Query(query, k)
	lookup := TranslationLookup{
		Query:        query,
		Translations: make([]TranslationHit, 0, len(hits)),
		Context:      make([]string, 0, len(hits)),
	}
	for _, h := range hits {
		lookup.Translations = append(lookup.Translations, translationHit(h))
		lookup.Context = append(lookup.Context, h.Original)
	}
	return lookup
}

func translationHit(h search.Hit) TranslationHit {
	return TranslationHit{
		ChunkID:    h.ChunkID,
		Original:   h.Original,
		Translated: h.Translated,
		Confidence: h.TranslationConfidence,
		Relevance:  math.Round(h.Score*10000) / 10000,
	}
}
