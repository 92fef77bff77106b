package commands

import (
	"bytes"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landrecords/rag-engine/cmd/ragctl/ui"
	"github.com/landrecords/rag-engine/internal/api/rpc"
	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/jobs"
	"github.com/landrecords/rag-engine/internal/progress"
	"github.com/landrecords/rag-engine/internal/search"
)

type fakeBackend struct{}

func (fakeBackend) Search(query string, topK int) []search.Hit {
	return []search.Hit{{
		Entry: search.Entry{ChunkID: "j1:0", JobID: "j1", Pages: domain.PageRange{Start: 0, End: 10}, Original: "khasra 112", Translated: "plot 112"},
		Score: 1,
	}}
}

func (fakeBackend) Progress(jobID string) (progress.Record, error) {
	if jobID != "j1" {
		return progress.Record{}, jobs.ErrNotFound
	}
	return progress.Record{
		JobID:           "j1",
		Status:          domain.JobStatusProcessing,
		CurrentStage:    domain.StageOCR,
		TotalChunks:     4,
		CompletedChunks: 2,
		ProgressPercent: 50,
	}, nil
}

func newRPCServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	rpc.NewServer(fakeBackend{}, nil).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	var buf bytes.Buffer
	ui.SetOutput(&buf)
	t.Cleanup(func() { ui.SetOutput(os.Stdout) })

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"process", "batch", "estimate", "search", "progress", "cache"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestChunksDone_DoesNotDoubleCountFailures(t *testing.T) {
	rec := progress.Record{TotalChunks: 4, CompletedChunks: 4, FailedChunks: 2}
	assert.Equal(t, int64(4), chunksDone(rec))

	rec = progress.Record{TotalChunks: 4, CompletedChunks: 1, FailedChunks: 1}
	assert.Equal(t, int64(1), chunksDone(rec))
}

func TestSearchCommand(t *testing.T) {
	srv := newRPCServer(t)

	out, err := execute(t, "search", "khasra", "--server", srv.URL, "--top-k", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "plot 112")
	assert.Contains(t, out, "1-10")
}

func TestProgressCommand(t *testing.T) {
	srv := newRPCServer(t)

	out, err := execute(t, "progress", "j1", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "processing")
	assert.Contains(t, out, "2/4")
	assert.Contains(t, out, "50.0%")

	_, err = execute(t, "progress", "missing", "--server", srv.URL)
	assert.Error(t, err)
}

func TestProcessRequiresArgument(t *testing.T) {
	_, err := execute(t, "process")
	assert.Error(t, err)
}
