// Package handlers provides HTTP handlers for the RAG engine API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/jobs"
	"github.com/landrecords/rag-engine/internal/progress"
	"github.com/landrecords/rag-engine/internal/search"
)

// JobService is the job submission surface the handlers serve.
type JobService interface {
	Submit(sourceRef string, opts domain.Options) (string, error)
	Progress(jobID string) (progress.Record, error)
	Result(jobID string) (*domain.DocumentResult, error)
	Cancel(jobID string) error
	Subscribe(ctx context.Context, jobID string) (<-chan domain.StreamEvent, error)
	Search(query string, topK int) []search.Hit
	TranslationContext(query string, k int) jobs.TranslationLookup
	Estimate(ctx context.Context, sourceRef string, translate bool) (*jobs.Estimate, error)
	ClearCache(ctx context.Context, olderThan time.Duration) (int, error)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}

// statusFor maps job-surface errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrOverloaded), errors.Is(err, jobs.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, jobs.ErrPending):
		return http.StatusAccepted
	case errors.Is(err, jobs.ErrJobFailed):
		return http.StatusUnprocessableEntity
	case domain.IsType(err, domain.ErrorTypeValidation):
		return http.StatusBadRequest
	case domain.IsType(err, domain.ErrorTypeExtraction):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
