package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	loads  int
	saves  int
	closed bool
}

func (f *failingBackend) Load(ctx context.Context, fingerprint string) (*Entry, error) {
	f.loads++
	return nil, errors.New("connection refused")
}

func (f *failingBackend) Save(ctx context.Context, fingerprint string, entry Entry) error {
	f.saves++
	return errors.New("connection refused")
}

func (f *failingBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func (f *failingBackend) Close() error {
	f.closed = true
	return nil
}

func TestStore_GetPut(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(10), nil)

	_, ok := store.Get(ctx, "fp")
	assert.False(t, ok)

	store.Put(ctx, "fp", Entry{RawText: "text", Translated: true, TranslatedText: "translated"})

	entry, ok := store.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, "text", entry.RawText)
	assert.Equal(t, "translated", entry.TranslatedText)
	assert.False(t, entry.CreatedAt.IsZero(), "Put stamps missing creation time")
}

func TestStore_BackendFailuresDegradeToMiss(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{}
	store := NewStore(backend, nil)

	assert.NotPanics(t, func() {
		store.Put(ctx, "fp", Entry{RawText: "text"})
	})

	entry, ok := store.Get(ctx, "fp")
	assert.False(t, ok)
	assert.Nil(t, entry)
	assert.Equal(t, 1, backend.loads)
	assert.Equal(t, 1, backend.saves)

	_, err := store.EvictOlderThan(ctx, time.Hour)
	assert.Error(t, err)

	require.NoError(t, store.Close())
	assert.True(t, backend.closed)
}

func TestStore_EvictOlderThan(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(10)
	store := NewStore(backend, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Put(ctx, "stale", Entry{CreatedAt: now.Add(-48 * time.Hour)})
	store.Put(ctx, "fresh", Entry{CreatedAt: now.Add(-time.Hour)})

	removed, err := store.EvictOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := store.Get(ctx, "fresh")
	assert.True(t, ok)

	removed, err = store.EvictOlderThan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, backend.Len())
}

func TestStore_RunJanitorStopsOnCancel(t *testing.T) {
	backend := NewMemoryBackend(10)
	store := NewStore(backend, nil)
	store.Put(context.Background(), "stale", Entry{CreatedAt: time.Now().Add(-time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunJanitor(ctx, 10*time.Millisecond, time.Minute)
		close(done)
	}()

	assert.Eventually(t, func() bool { return backend.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
