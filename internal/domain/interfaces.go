package domain

import "context"

// PageExtractor turns a source document into ordered page images.
type PageExtractor interface {
	// Extract rasterizes every page of the source. Fails with an extraction
	// error when the source cannot be decoded or has no pages.
	Extract(ctx context.Context, sourceRef string) (*PageSet, error)

	// PageCount opens the source without rendering and reports its page count.
	PageCount(ctx context.Context, sourceRef string) (int, error)
}

// OCREngine recognizes text on a single page image.
type OCREngine interface {
	Name() string
	Recognize(ctx context.Context, page PageImage) (OCRResult, error)
}

// Cleaner normalizes raw OCR output.
type Cleaner interface {
	Clean(text string) string
}

// Translator translates text between two language codes.
type Translator interface {
	Model() string
	Translate(ctx context.Context, text, sourceLang, targetLang string) (Translation, error)
}
