// Package domain holds the models, collaborator interfaces and error types
// shared by the extraction, pipeline and job packages.
package domain

import (
	"fmt"
	"os"
	"time"
)

// JobStatus is the lifecycle state of a document job.
type JobStatus string

const (
	JobStatusQueued              JobStatus = "queued"
	JobStatusExtracting          JobStatus = "extracting"
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
	JobStatusCancelled           JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions can happen.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ChunkState is the processing state of one chunk.
type ChunkState string

const (
	ChunkPending    ChunkState = "pending"
	ChunkOCRDone    ChunkState = "ocr_done"
	ChunkTranslated ChunkState = "translated"
	ChunkCached     ChunkState = "cached"
	ChunkFailed     ChunkState = "failed"
)

// Stage describes what a job is currently doing.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageExtracting  Stage = "extracting"
	StagePlanning    Stage = "planning"
	StageOCR         Stage = "ocr"
	StageTranslating Stage = "translating"
	StageAssembling  Stage = "assembling"
	StageDone        Stage = "done"
)

// PageImage represents a single rasterized page.
type PageImage struct {
	Index     int    `json:"index"` // 0-based position in the source
	ImagePath string `json:"image_path"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Digest    string `json:"digest"` // sha256 of the encoded image bytes
}

// PageSet is the output of a PageExtractor. Cleanup releases scratch files.
type PageSet struct {
	SourceRef  string
	Pages      []PageImage
	ScratchDir string
}

// Cleanup removes the scratch directory holding the page images.
func (p *PageSet) Cleanup() error {
	if p == nil || p.ScratchDir == "" {
		return nil
	}
	if err := os.RemoveAll(p.ScratchDir); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	p.ScratchDir = ""
	return nil
}

// PageRange is a half-open [Start, End) range of 0-based page indices.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of pages in the range.
func (r PageRange) Len() int {
	return r.End - r.Start
}

func (r PageRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start+1, r.End)
}

// ChunkDescriptor is one processing unit of a job.
type ChunkDescriptor struct {
	ChunkID  string    `json:"chunk_id"`
	JobID    string    `json:"job_id"`
	Sequence int       `json:"sequence"`
	Pages    PageRange `json:"pages"`
}

// ChunkID derives the stable identifier of a chunk.
func ChunkID(jobID string, seq int) string {
	return fmt.Sprintf("%s:%d", jobID, seq)
}

// OCRResult is the output of the OCR collaborator.
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1
}

// Translation is the output of the translation collaborator.
type Translation struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1
}

// ChunkResult is the processed output of one chunk.
type ChunkResult struct {
	ChunkID               string        `json:"chunk_id"`
	Sequence              int           `json:"sequence"`
	Pages                 PageRange     `json:"pages"`
	State                 ChunkState    `json:"state"`
	Fingerprint           string        `json:"fingerprint,omitempty"`
	RawText               string        `json:"raw_text"`
	CleanedText           string        `json:"cleaned_text"`
	Confidence            float64       `json:"confidence"`
	TranslatedText        string        `json:"translated_text,omitempty"`
	TranslationConfidence float64       `json:"translation_confidence,omitempty"`
	Error                 string        `json:"error,omitempty"`
	Duration              time.Duration `json:"duration"`
}

// Failed reports whether the chunk ended in the failed state.
func (c ChunkResult) Failed() bool {
	return c.State == ChunkFailed
}

// DocumentResult is the assembled, ordered output of a job.
type DocumentResult struct {
	JobID           string        `json:"job_id"`
	SourceRef       string        `json:"source_ref"`
	Status          JobStatus     `json:"status"`
	TotalPages      int           `json:"total_pages"`
	TotalChunks     int           `json:"total_chunks"`
	Chunks          []ChunkResult `json:"chunks"`
	FullText        string        `json:"full_text"`
	FullTranslation string        `json:"full_translation,omitempty"`
	FailedChunks    int           `json:"failed_chunks"`
	CachedChunks    int           `json:"cached_chunks"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`

	// Fields holds land record fields recognized in the assembled text.
	Fields map[string]string `json:"fields,omitempty"`
}

// Options are per-job processing options.
type Options struct {
	Translate  bool   `json:"translate"`
	UseCache   bool   `json:"use_cache"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// EventType represents the type of stream event.
type EventType string

const (
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// StreamEvent is delivered to streaming subscribers of a job.
type StreamEvent struct {
	Type      EventType    `json:"event"`
	Chunk     *ChunkResult `json:"chunk,omitempty"`
	Status    JobStatus    `json:"status,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
