package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/observability"
)

// JobHandler handles job submission, progress, results and streaming.
type JobHandler struct {
	logger         *observability.Logger
	jobs           JobService
	uploadDir      string
	maxUploadBytes int64
}

// NewJobHandler creates a new job handler.
func NewJobHandler(logger *observability.Logger, jobs JobService, uploadDir string, maxUploadBytes int64) *JobHandler {
	return &JobHandler{
		logger:         logger,
		jobs:           jobs,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// SubmitRequestDTO represents the API request for a new job.
type SubmitRequestDTO struct {
	SourceRef  string `json:"sourceRef"`
	Translate  *bool  `json:"translate,omitempty"`
	UseCache   *bool  `json:"useCache,omitempty"`
	SourceLang string `json:"sourceLang,omitempty"`
	TargetLang string `json:"targetLang,omitempty"`
}

// SubmitResponseDTO represents the API response for a new job.
type SubmitResponseDTO struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// Submit handles POST /jobs.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.SourceRef == "" {
		writeError(w, http.StatusBadRequest, "sourceRef is required", "")
		return
	}

	opts := domain.Options{
		Translate:  boolOr(req.Translate, true),
		UseCache:   boolOr(req.UseCache, true),
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
	}
	h.submit(w, r, req.SourceRef, opts)
}

// Upload handles POST /jobs/upload with a multipart "file" field.
func (h *JobHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "file must be a PDF", header.Filename)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Failed to create upload directory")
		writeError(w, http.StatusInternalServerError, "upload failed", "")
		return
	}

	dest := filepath.Join(h.uploadDir, uuid.NewString()+"_"+filepath.Base(header.Filename))
	if err := saveUpload(dest, file); err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Str("path", dest).Msg("Failed to store upload")
		writeError(w, http.StatusInternalServerError, "upload failed", "")
		return
	}

	opts := domain.Options{
		Translate:  formBool(r, "translate", true),
		UseCache:   formBool(r, "useCache", true),
		SourceLang: r.FormValue("sourceLang"),
		TargetLang: r.FormValue("targetLang"),
	}
	if _, err := h.submit(w, r, dest, opts); err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			h.logger.WithContext(r.Context()).Warn().Err(rmErr).Str("path", dest).Msg("Failed to remove rejected upload")
		}
	}
}

// submit writes the response for a submission and returns the job id.
func (h *JobHandler) submit(w http.ResponseWriter, r *http.Request, sourceRef string, opts domain.Options) (string, error) {
	jobID, err := h.jobs.Submit(sourceRef, opts)
	if err != nil {
		h.logger.WithContext(r.Context()).Warn().Err(err).Str("source_ref", sourceRef).Msg("Job submission rejected")
		writeError(w, statusFor(err), "job submission failed", err.Error())
		return "", err
	}
	writeJSON(w, http.StatusAccepted, SubmitResponseDTO{JobID: jobID, Status: string(domain.JobStatusQueued)})
	return jobID, nil
}

// Progress handles GET /jobs/{jobId}/progress.
func (h *JobHandler) Progress(w http.ResponseWriter, r *http.Request) {
	rec, err := h.jobs.Progress(chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, statusFor(err), "progress unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Result handles GET /jobs/{jobId}/result.
func (h *JobHandler) Result(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	doc, err := h.jobs.Result(jobID)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusAccepted {
			writeJSON(w, status, map[string]string{"jobId": jobID, "status": "pending"})
			return
		}
		writeError(w, status, "result unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Cancel handles POST /jobs/{jobId}/cancel.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.jobs.Cancel(jobID); err != nil {
		writeError(w, statusFor(err), "cancel failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": "cancel_requested"})
}

// Stream handles GET /jobs/{jobId}/stream as server-sent events. Earlier
// chunks are replayed first; the final frame carries the progress record.
func (h *JobHandler) Stream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	events, err := h.jobs.Subscribe(r.Context(), jobID)
	if err != nil {
		writeError(w, statusFor(err), "stream unavailable", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		var frame interface{} = ev
		if ev.Type != domain.EventChunk {
			frame = h.finalFrame(jobID, ev)
		}
		if err := writeEvent(w, frame); err != nil {
			h.logger.WithContext(r.Context()).Debug().Err(err).Str("job_id", jobID).Msg("Stream client went away")
			return
		}
		flusher.Flush()
	}
}

// finalFrame attaches the job's progress record to the closing event.
func (h *JobHandler) finalFrame(jobID string, ev domain.StreamEvent) map[string]interface{} {
	frame := map[string]interface{}{
		"event":     ev.Type,
		"status":    ev.Status,
		"timestamp": ev.Timestamp,
	}
	if ev.Error != "" {
		frame["error"] = ev.Error
	}
	if rec, err := h.jobs.Progress(jobID); err == nil {
		frame["progress"] = rec
	}
	return frame
}

func writeEvent(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func saveUpload(dest string, src io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func formBool(r *http.Request, key string, def bool) bool {
	v := r.FormValue(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
