package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/landrecords/rag-engine/internal/observability"
)

// SearchHandler handles lookups over processed chunks and engine maintenance.
type SearchHandler struct {
	logger *observability.Logger
	jobs   JobService
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(logger *observability.Logger, jobs JobService) *SearchHandler {
	return &SearchHandler{logger: logger, jobs: jobs}
}

// SearchRequestDTO represents the API request for a search.
type SearchRequestDTO struct {
	Query string `json:"query"`
	TopK  int    `json:"topK,omitempty"`
}

// SearchResultDTO represents one search hit.
type SearchResultDTO struct {
	ChunkID    string  `json:"chunkId"`
	JobID      string  `json:"jobId"`
	Sequence   int     `json:"sequence"`
	Pages      string  `json:"pages"`
	Score      float64 `json:"score"`
	Original   string  `json:"original"`
	Translated string  `json:"translated,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Search handles POST /search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	hits := h.jobs.Search(req.Query, req.TopK)
	results := make([]SearchResultDTO, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResultDTO{
			ChunkID:    hit.ChunkID,
			JobID:      hit.JobID,
			Sequence:   hit.Sequence,
			Pages:      hit.Pages.String(),
			Score:      hit.Score,
			Original:   hit.Original,
			Translated: hit.Translated,
			Confidence: hit.Confidence,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

// TranslateQueryRequestDTO represents a RAG translation lookup.
type TranslateQueryRequestDTO struct {
	Query         string `json:"query"`
	ContextChunks int    `json:"contextChunks,omitempty"`
}

// TranslateQuery handles POST /translate/query.
func (h *SearchHandler) TranslateQuery(w http.ResponseWriter, r *http.Request) {
	var req TranslateQueryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	writeJSON(w, http.StatusOK, h.jobs.TranslationContext(req.Query, req.ContextChunks))
}

// EstimateRequestDTO represents a processing-time estimate request.
type EstimateRequestDTO struct {
	SourceRef string `json:"sourceRef"`
	Translate *bool  `json:"translate,omitempty"`
}

// Estimate handles POST /estimate.
func (h *SearchHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.SourceRef == "" {
		writeError(w, http.StatusBadRequest, "sourceRef is required", "")
		return
	}

	est, err := h.jobs.Estimate(r.Context(), req.SourceRef, boolOr(req.Translate, true))
	if err != nil {
		writeError(w, statusFor(err), "estimate failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// ClearCacheRequestDTO represents a cache clear request. An empty OlderThan
// clears everything.
type ClearCacheRequestDTO struct {
	OlderThan string `json:"olderThan,omitempty"`
}

// ClearCache handles POST /cache/clear.
func (h *SearchHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	var req ClearCacheRequestDTO
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	var olderThan time.Duration
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid olderThan duration", err.Error())
			return
		}
		olderThan = d
	}

	removed, err := h.jobs.ClearCache(r.Context(), olderThan)
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Cache clear failed")
		writeError(w, http.StatusInternalServerError, "cache clear failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}
