// Package cache provides the chunk store: a fingerprint-keyed cache of OCR and
// translation results shared across jobs.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss indicates a cache miss at the backend level.
var ErrCacheMiss = errors.New("cache miss")

// Entry is a cached chunk result.
type Entry struct {
	RawText               string    `json:"raw_text"`
	Confidence            float64   `json:"confidence"`
	CleanedText           string    `json:"cleaned_text"`
	TranslatedText        string    `json:"translated_text"`
	TranslationConfidence float64   `json:"translation_confidence"`
	Translated            bool      `json:"translated"`
	ModelVersion          string    `json:"model_version"`
	CreatedAt             time.Time `json:"created_at"`
}

// Backend is a storage medium for cache entries. Unlike Store, backends
// report every failure to the caller.
type Backend interface {
	// Load returns ErrCacheMiss when no entry exists.
	Load(ctx context.Context, fingerprint string) (*Entry, error)
	// Save atomically replaces the entry for fingerprint.
	Save(ctx context.Context, fingerprint string, entry Entry) error
	// DeleteOlderThan removes entries created before cutoff. A zero cutoff
	// removes everything.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
