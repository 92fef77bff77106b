// Package ocr holds engine-agnostic OCR helpers used by the pipeline.
package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/landrecords/rag-engine/internal/domain"
)

// PageSeparator joins page texts inside one chunk.
const PageSeparator = "\n\n"

// RecognizePages runs engine over each page in order and combines the
// results. Confidence is the mean of the page confidences. The first page
// error aborts the chunk.
func RecognizePages(ctx context.Context, engine domain.OCREngine, pages []domain.PageImage) (domain.OCRResult, error) {
	if len(pages) == 0 {
		return domain.OCRResult{}, nil
	}

	texts := make([]string, 0, len(pages))
	var sum float64
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return domain.OCRResult{}, err
		}

		res, err := engine.Recognize(ctx, page)
		if err != nil {
			return domain.OCRResult{}, fmt.Errorf("page %d: %w", page.Index+1, err)
		}
		texts = append(texts, res.Text)
		sum += res.Confidence
	}

	return domain.OCRResult{
		Text:       strings.Join(texts, PageSeparator),
		Confidence: sum / float64(len(pages)),
	}, nil
}

// ParseLanguages splits a tesseract language spec such as "eng+hin+urd".
func ParseLanguages(spec string) []string {
	var langs []string
	for _, part := range strings.FieldsFunc(spec, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	}) {
		langs = append(langs, strings.TrimSpace(part))
	}
	return langs
}

// NullEngine recognizes nothing. It lets the pipeline run where no OCR
// engine is installed.
type NullEngine struct{}

func (NullEngine) Name() string { return "none" }

// Recognize returns empty text with zero confidence.
func (NullEngine) Recognize(ctx context.Context, page domain.PageImage) (domain.OCRResult, error) {
	return domain.OCRResult{}, nil
}
