// Package rpc provides the Connect services for search and job progress.
package rpc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/landrecords/rag-engine/internal/jobs"
	"github.com/landrecords/rag-engine/internal/observability"
	"github.com/landrecords/rag-engine/internal/progress"
	"github.com/landrecords/rag-engine/internal/search"
)

const (
	SearchProcedure      = "/rag.v1.SearchService/Search"
	GetProgressProcedure = "/rag.v1.JobService/GetProgress"
)

// Backend is the part of the job manager the services need.
type Backend interface {
	Search(query string, topK int) []search.Hit
	Progress(jobID string) (progress.Record, error)
}

// SearchRequest represents the Search request message.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int32  `json:"top_k,omitempty"`
}

// SearchResponse represents the Search response message.
type SearchResponse struct {
	Hits []*SearchHit `json:"hits"`
}

// SearchHit is one ranked chunk.
type SearchHit struct {
	ChunkID    string  `json:"chunk_id"`
	JobID      string  `json:"job_id"`
	Sequence   int32   `json:"sequence"`
	Pages      string  `json:"pages"`
	Score      float64 `json:"score"`
	Original   string  `json:"original"`
	Translated string  `json:"translated,omitempty"`
	Confidence float64 `json:"confidence"`
}

// GetProgressRequest represents the GetProgress request message.
type GetProgressRequest struct {
	JobID string `json:"job_id"`
}

// GetProgressResponse represents the GetProgress response message.
type GetProgressResponse struct {
	JobID                     string   `json:"job_id"`
	Status                    string   `json:"status"`
	CurrentStage              string   `json:"current_stage"`
	TotalPages                int32    `json:"total_pages"`
	TotalChunks               int32    `json:"total_chunks"`
	CompletedChunks           int32    `json:"completed_chunks"`
	FailedChunks              int32    `json:"failed_chunks"`
	CachedChunks              int32    `json:"cached_chunks"`
	ProgressPercent           float64  `json:"progress_percent"`
	ElapsedSeconds            float64  `json:"elapsed_seconds"`
	EstimatedRemainingSeconds float64  `json:"estimated_remaining_seconds"`
	CancelRequested           bool     `json:"cancel_requested"`
	Errors                    []string `json:"errors,omitempty"`
}

// Server implements the Connect search and job services.
type Server struct {
	backend Backend
	logger  *observability.Logger
}

// NewServer creates the services.
func NewServer(backend Backend, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Server{backend: backend, logger: logger.WithOperation("rpc")}
}

// Register mounts every procedure on mux.
func (s *Server) Register(mux interface {
	Handle(pattern string, handler http.Handler)
}) {
	codec := connect.WithCodec(jsonCodec{})
	mux.Handle(SearchProcedure, connect.NewUnaryHandler(SearchProcedure, s.Search, codec))
	mux.Handle(GetProgressProcedure, connect.NewUnaryHandler(GetProgressProcedure, s.GetProgress, codec))
}

// Search handles Connect search queries.
func (s *Server) Search(ctx context.Context, req *connect.Request[SearchRequest]) (*connect.Response[SearchResponse], error) {
	query := strings.TrimSpace(req.Msg.Query)
	if query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}

	hits := s.backend.Search(query, int(req.Msg.TopK))
	resp := &SearchResponse{Hits: make([]*SearchHit, 0, len(hits))}
	for _, h := range hits {
		resp.Hits = append(resp.Hits, &SearchHit{
			ChunkID:    h.ChunkID,
			JobID:      h.JobID,
			Sequence:   int32(h.Sequence),
			Pages:      h.Pages.String(),
			Score:      h.Score,
			Original:   h.Original,
			Translated: h.Translated,
			Confidence: h.Confidence,
		})
	}

	s.logger.Debug().Str("query", query).Int("hits", len(resp.Hits)).Msg("search served")
	return connect.NewResponse(resp), nil
}

// GetProgress handles Connect progress lookups.
func (s *Server) GetProgress(ctx context.Context, req *connect.Request[GetProgressRequest]) (*connect.Response[GetProgressResponse], error) {
	if req.Msg.JobID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("job_id is required"))
	}

	rec, err := s.backend.Progress(req.Msg.JobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, progress.ErrNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		s.logger.Error().Err(err).Str("job_id", req.Msg.JobID).Msg("progress lookup failed")
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(toProgressResponse(rec)), nil
}

func toProgressResponse(rec progress.Record) *GetProgressResponse {
	return &GetProgressResponse{
		JobID:                     rec.JobID,
		Status:                    string(rec.Status),
		CurrentStage:              string(rec.CurrentStage),
		TotalPages:                int32(rec.TotalPages),
		TotalChunks:               int32(rec.TotalChunks),
		CompletedChunks:           int32(rec.CompletedChunks),
		FailedChunks:              int32(rec.FailedChunks),
		CachedChunks:              int32(rec.CachedChunks),
		ProgressPercent:           rec.ProgressPercent,
		ElapsedSeconds:            rec.ElapsedSeconds,
		EstimatedRemainingSeconds: rec.EstimatedRemainingSeconds,
		CancelRequested:           rec.CancelRequested,
		Errors:                    rec.Errors,
	}
}
