// Package tesseract provides the gosseract-backed OCR engine. It needs
// libtesseract and the language data for the configured languages.
package tesseract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/ocr"
)

// Config selects languages and the tessdata location.
type Config struct {
	Languages      string
	TessdataPrefix string
}

// Engine implements domain.OCREngine using the gosseract client.
type Engine struct {
	languages      []string
	tessdataPrefix string
	clientFactory  func() *gosseract.Client
}

// New constructs a Tesseract-backed OCR engine.
func New(cfg Config) *Engine {
	return &Engine{
		languages:      ocr.ParseLanguages(cfg.Languages),
		tessdataPrefix: cfg.TessdataPrefix,
		clientFactory:  gosseract.NewClient,
	}
}

func (e *Engine) Name() string {
	return "tesseract:" + strings.Join(e.languages, "+")
}

// Recognize runs OCR on one page image. A missing image file is permanent.
func (e *Engine) Recognize(ctx context.Context, page domain.PageImage) (domain.OCRResult, error) {
	if _, err := os.Stat(page.ImagePath); err != nil {
		return domain.OCRResult{}, domain.OCRError(fmt.Sprintf("page image unavailable: %s", page.ImagePath), err).AsPermanent()
	}
	if err := ctx.Err(); err != nil {
		return domain.OCRResult{}, err
	}

	c := e.clientFactory()
	defer c.Close()

	if e.tessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return domain.OCRResult{}, domain.OCRError("set tessdata prefix", err).AsPermanent()
		}
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return domain.OCRResult{}, domain.OCRError("set languages", err).AsPermanent()
		}
	}
	if err := c.SetImage(page.ImagePath); err != nil {
		return domain.OCRResult{}, domain.OCRError("set image", err)
	}

	text, err := c.Text()
	if err != nil {
		return domain.OCRResult{}, domain.OCRError(fmt.Sprintf("recognize page %d", page.Index+1), err)
	}

	return domain.OCRResult{
		Text:       strings.TrimSpace(text),
		Confidence: meanWordConfidence(c),
	}, nil
}

// meanWordConfidence averages word confidences, scaled to 0..1.
func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
