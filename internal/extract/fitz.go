// Package extract rasterizes source documents into page images.
package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/observability"
)

// Options configures rendering.
type Options struct {
	DPI         float64
	JPEGQuality int
	// ScratchDir is the parent of per-job scratch directories. Empty means
	// the system temp dir.
	ScratchDir string
}

// FitzExtractor implements domain.PageExtractor using go-fitz (MuPDF).
type FitzExtractor struct {
	opts      Options
	validator *Validator
	logger    *observability.Logger
}

// NewFitzExtractor creates an extractor.
func NewFitzExtractor(opts Options, logger *observability.Logger) *FitzExtractor {
	if opts.DPI <= 0 {
		opts.DPI = 144
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = 90
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &FitzExtractor{
		opts:      opts,
		validator: NewValidator(logger),
		logger:    logger,
	}
}

// Validator exposes the source validator used before extraction.
func (e *FitzExtractor) Validator() *Validator {
	return e.validator
}

// PageCount opens the document without rendering any page.
func (e *FitzExtractor) PageCount(ctx context.Context, sourceRef string) (int, error) {
	if err := e.validator.ValidateSource(sourceRef); err != nil {
		return 0, err
	}

	doc, err := fitz.New(sourceRef)
	if err != nil {
		return 0, domain.ExtractionError("failed to open document", err).AsPermanent()
	}
	defer doc.Close()

	return doc.NumPage(), nil
}

// Extract renders every page to a JPEG in a fresh scratch directory. On error
// the scratch directory is removed before returning.
func (e *FitzExtractor) Extract(ctx context.Context, sourceRef string) (*domain.PageSet, error) {
	if err := e.validator.ValidateSource(sourceRef); err != nil {
		return nil, err
	}
	if err := e.validator.ValidateQuality(e.opts.JPEGQuality); err != nil {
		return nil, err
	}

	start := time.Now()

	doc, err := fitz.New(sourceRef)
	if err != nil {
		return nil, domain.ExtractionError("failed to open document", err).AsPermanent()
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ExtractionError("document has no pages", nil).AsPermanent()
	}

	scratch, err := os.MkdirTemp(e.opts.ScratchDir, "rag-pages-*")
	if err != nil {
		return nil, domain.IOError("failed to create scratch directory", err)
	}

	set := &domain.PageSet{
		SourceRef:  sourceRef,
		Pages:      make([]domain.PageImage, 0, pageCount),
		ScratchDir: scratch,
	}

	for i := 0; i < pageCount; i++ {
		select {
		case <-ctx.Done():
			_ = set.Cleanup()
			return nil, ctx.Err()
		default:
		}

		page, err := e.renderPage(doc, i, scratch)
		if err != nil {
			_ = set.Cleanup()
			return nil, err
		}
		set.Pages = append(set.Pages, page)
	}

	e.logger.Info().
		Str("source", sourceRef).
		Int("pages", pageCount).
		Dur("duration", time.Since(start)).
		Msg("document rasterized")

	return set, nil
}

func (e *FitzExtractor) renderPage(doc *fitz.Document, index int, dir string) (domain.PageImage, error) {
	img, err := doc.ImageDPI(index, e.opts.DPI)
	if err != nil {
		return domain.PageImage{}, domain.ExtractionError(fmt.Sprintf("failed to render page %d", index+1), err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.opts.JPEGQuality}); err != nil {
		return domain.PageImage{}, domain.ExtractionError(fmt.Sprintf("failed to encode page %d as JPEG", index+1), err)
	}

	sum := sha256.Sum256(buf.Bytes())
	path := filepath.Join(dir, fmt.Sprintf("page_%04d.jpg", index+1))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return domain.PageImage{}, domain.IOError(fmt.Sprintf("failed to write page %d", index+1), err)
	}

	bounds := img.Bounds()
	return domain.PageImage{
		Index:     index,
		ImagePath: path,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Digest:    hex.EncodeToString(sum[:]),
	}, nil
}
