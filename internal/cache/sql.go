package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/landrecords/rag-engine/internal/storage"
)

// SQLBackend persists entries in the chunk_cache table. Queries use $n
// placeholders, which both go-sqlite3 and lib/pq accept.
type SQLBackend struct {
	db storage.DB
}

// NewSQLBackend creates a backend over a migrated database.
func NewSQLBackend(db storage.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

// Load retrieves an entry.
func (s *SQLBackend) Load(ctx context.Context, fingerprint string) (*Entry, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM chunk_cache WHERE fingerprint = $1`, fingerprint,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("select entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, nil
}

// Save upserts an entry in a single statement.
func (s *SQLBackend) Save(ctx context.Context, fingerprint string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	query := `
		INSERT INTO chunk_cache (fingerprint, payload, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (fingerprint) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at
	`
	if _, err := s.db.ExecContext(ctx, query, fingerprint, string(payload), entry.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// DeleteOlderThan removes entries created before cutoff.
func (s *SQLBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var (
		res sql.Result
		err error
	)
	if cutoff.IsZero() {
		res, err = s.db.ExecContext(ctx, `DELETE FROM chunk_cache`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM chunk_cache WHERE created_at < $1`, cutoff.UnixNano())
	}
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Close is a no-op; the database handle belongs to the caller.
func (s *SQLBackend) Close() error {
	return nil
}
