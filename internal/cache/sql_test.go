package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landrecords/rag-engine/internal/config"
	"github.com/landrecords/rag-engine/internal/storage"
)

func newSQLiteBackend(t *testing.T) *SQLBackend {
	t.Helper()
	db, err := storage.Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cache.db"), MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLBackend(db)
}

func TestSQLBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newSQLiteBackend(t)

	_, err := b.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entry := Entry{
		RawText:               "خسرہ نمبر 12",
		Confidence:            0.72,
		CleanedText:           "خسرہ نمبر 12",
		TranslatedText:        "Khasra number 12",
		TranslationConfidence: 0.95,
		Translated:            true,
		ModelVersion:          "tesseract:urd|openrouter:model",
		CreatedAt:             created,
	}
	require.NoError(t, b.Save(ctx, "fp", entry))

	got, err := b.Load(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, entry.RawText, got.RawText)
	assert.Equal(t, entry.TranslatedText, got.TranslatedText)
	assert.True(t, got.Translated)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestSQLBackend_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	b := newSQLiteBackend(t)

	require.NoError(t, b.Save(ctx, "fp", Entry{RawText: "first", CreatedAt: time.Now()}))
	require.NoError(t, b.Save(ctx, "fp", Entry{RawText: "second", CreatedAt: time.Now()}))

	got, err := b.Load(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "second", got.RawText)
}

func TestSQLBackend_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	b := newSQLiteBackend(t)
	now := time.Now()

	require.NoError(t, b.Save(ctx, "stale", Entry{CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, b.Save(ctx, "fresh", Entry{CreatedAt: now}))

	removed, err := b.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = b.Load(ctx, "stale")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = b.Load(ctx, "fresh")
	assert.NoError(t, err)

	removed, err = b.DeleteOlderThan(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
