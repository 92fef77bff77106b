package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf, ServiceName: "test-svc"})

	logger.WithJob("job-1").Info().
		Str("chunk_id", "job-1:0").
		Int("pages", 10).
		Err(errors.New("boom")).
		Msg("chunk failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "test-svc", line["service"])
	assert.Equal(t, "job-1", line["job_id"])
	assert.Equal(t, "job-1:0", line["chunk_id"])
	assert.Equal(t, float64(10), line["pages"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "chunk failed", line["message"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc")
	assert.Equal(t, "abc", TraceIDFromContext(ctx))
	assert.Empty(t, TraceIDFromContext(context.Background()))

	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Output: &buf}).WithContext(ctx)
	logger.Debug().Msg("traced")
	assert.Contains(t, buf.String(), `"trace_id":"abc"`)
}
