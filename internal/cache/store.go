package cache

import (
	"context"
	"errors"
	"time"

	"github.com/landrecords/rag-engine/internal/observability"
)

// Store is the chunk store used by the pipeline. Backend failures never
// reach callers: a failed read is a miss and a failed write is dropped.
type Store struct {
	backend Backend
	logger  *observability.Logger
	now     func() time.Time
}

// NewStore wraps a backend.
func NewStore(backend Backend, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the entry for fingerprint, or false on a miss or any backend
// error.
func (s *Store) Get(ctx context.Context, fingerprint string) (*Entry, bool) {
	entry, err := s.backend.Load(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Debug().
				Err(err).
				Str("fingerprint", fingerprint).
				Msg("cache read failed, treating as miss")
		}
		return nil, false
	}
	return entry, true
}

// Put stores an entry, replacing any previous one. Errors are logged and
// swallowed.
func (s *Store) Put(ctx context.Context, fingerprint string, entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if err := s.backend.Save(ctx, fingerprint, entry); err != nil {
		s.logger.Warn().
			Err(err).
			Str("fingerprint", fingerprint).
			Msg("cache write failed")
	}
}

// EvictOlderThan removes entries older than age. A non-positive age clears
// the whole store.
func (s *Store) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	var cutoff time.Time
	if age > 0 {
		cutoff = s.now().Add(-age)
	}

	removed, err := s.backend.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return removed, err
	}

	s.logger.Info().
		Int("removed", removed).
		Dur("older_than", age).
		Msg("cache eviction complete")
	return removed, nil
}

// RunJanitor evicts entries older than ttl every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.EvictOlderThan(ctx, ttl); err != nil {
				s.logger.Warn().Err(err).Msg("cache janitor eviction failed")
			}
		}
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
