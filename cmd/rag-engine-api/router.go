// Package main provides the API router setup.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/landrecords/rag-engine/cmd/rag-engine-api/handlers"
	"github.com/landrecords/rag-engine/cmd/rag-engine-api/middleware"
	"github.com/landrecords/rag-engine/internal/api/rpc"
	"github.com/landrecords/rag-engine/internal/observability"
)

// Service is everything the router serves: the job surface plus the RPC backend.
type Service interface {
	handlers.JobService
	rpc.Backend
}

// RouterConfig holds the HTTP settings the router needs.
type RouterConfig struct {
	RequestTimeout time.Duration
	UploadDir      string
	MaxUploadBytes int64
	CORSOrigins    []string
	Ready          func(ctx context.Context) error
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg RouterConfig, svc Service) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.TraceID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"rag-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "not_ready", "detail": err.Error()})
				return
			}
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Connect RPC procedures
	rpc.NewServer(svc, logger).Register(r)

	jobHandler := handlers.NewJobHandler(logger, svc, cfg.UploadDir, cfg.MaxUploadBytes)
	searchHandler := handlers.NewSearchHandler(logger, svc)

	r.Route("/api/v1", func(r chi.Router) {
		// Event streams stay open for the whole job.
		r.Get("/jobs/{jobId}/stream", jobHandler.Stream)

		r.Group(func(r chi.Router) {
			if cfg.RequestTimeout > 0 {
				r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
			}

			r.Post("/jobs", jobHandler.Submit)
			r.Post("/jobs/upload", jobHandler.Upload)
			r.Get("/jobs/{jobId}/progress", jobHandler.Progress)
			r.Get("/jobs/{jobId}/result", jobHandler.Result)
			r.Post("/jobs/{jobId}/cancel", jobHandler.Cancel)

			r.Post("/search", searchHandler.Search)
			r.Post("/translate/query", searchHandler.TranslateQuery)
			r.Post("/estimate", searchHandler.Estimate)
			r.Post("/cache/clear", searchHandler.ClearCache)
		})
	})

	return r
}
