package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/landrecords/rag-engine/internal/observability"
)

func TestTraceID_UsesRequestID(t *testing.T) {
	var traceID, reqID string
	h := chimiddleware.RequestID(TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = observability.TraceIDFromContext(r.Context())
		reqID = chimiddleware.GetReqID(r.Context())
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, reqID)
	assert.Equal(t, reqID, traceID)
}

func TestTraceID_WithoutRequestID(t *testing.T) {
	var traceID string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = observability.TraceIDFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, traceID)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
