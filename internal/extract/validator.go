package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/observability"
)

// largeSourceBytes is the size above which a warning is logged.
const largeSourceBytes = 100 * 1024 * 1024

var pdfMagic = []byte("%PDF-")

// Validator provides input validation for source documents
type Validator struct {
	logger *observability.Logger
}

// NewValidator creates a new validator instance
func NewValidator(logger *observability.Logger) *Validator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Validator{logger: logger}
}

// ValidateSource checks that sourceRef is a readable PDF file. Every failure
// is a permanent validation error.
func (v *Validator) ValidateSource(sourceRef string) error {
	if strings.TrimSpace(sourceRef) == "" {
		return domain.ValidationError("source reference cannot be empty", nil)
	}

	info, err := os.Stat(sourceRef)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", sourceRef), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", sourceRef), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", sourceRef), nil)
	}

	ext := strings.ToLower(filepath.Ext(sourceRef))
	if ext != ".pdf" {
		return domain.ValidationError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	if info.Size() > largeSourceBytes {
		v.logger.Warn().
			Str("source", sourceRef).
			Int64("size_mb", info.Size()/(1024*1024)).
			Msg("source document is very large, processing may take a while")
	}

	file, err := os.Open(sourceRef)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("cannot open file: %s", sourceRef), err)
	}
	defer file.Close()

	header := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(file, header); err != nil || !bytes.Equal(header, pdfMagic) {
		return domain.ValidationError(fmt.Sprintf("file is not a PDF: %s", sourceRef), nil)
	}

	return nil
}

// ValidateQuality validates the JPEG quality parameter
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	return nil
}
