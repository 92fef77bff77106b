package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Format(t *testing.T) {
	err := OCRError("page 3 unreadable", errors.New("bad image"))
	assert.Equal(t, "[ocr] page 3 unreadable: bad image", err.Error())

	bare := ExtractionError("PDF has no pages", nil)
	assert.Equal(t, "[extraction] PDF has no pages", bare.Error())
}

func TestDomainError_UnwrapAndType(t *testing.T) {
	root := errors.New("connection reset")
	wrapped := fmt.Errorf("chunk 2: %w", TranslationError("request failed", root))

	assert.ErrorIs(t, wrapped, root)
	assert.True(t, IsType(wrapped, ErrorTypeTranslation))
	assert.False(t, IsType(wrapped, ErrorTypeOCR))
	assert.False(t, IsType(root, ErrorTypeTranslation))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ValidationError("bad input", nil)))
	assert.True(t, IsPermanent(fmt.Errorf("wrap: %w", TranslationError("unsupported pair", nil).AsPermanent())))
	assert.False(t, IsPermanent(OCRError("transient", nil)))
	assert.False(t, IsPermanent(errors.New("plain")))
}

func TestJobStatus_IsTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []JobStatus{JobStatusQueued, JobStatusExtracting, JobStatusProcessing} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestPageRange(t *testing.T) {
	r := PageRange{Start: 20, End: 25}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, "21-25", r.String())
	assert.Equal(t, "job:2", ChunkID("job", 2))
}
