package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps entries in process memory, bounded by maxEntries.
type MemoryBackend struct {
	mu         sync.RWMutex
	data       map[string]Entry
	maxEntries int
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryBackend{
		data:       make(map[string]Entry),
		maxEntries: maxEntries,
	}
}

// Load retrieves an entry.
func (m *MemoryBackend) Load(ctx context.Context, fingerprint string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[fingerprint]
	if !ok {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

// Save stores an entry, evicting the oldest one when full.
func (m *MemoryBackend) Save(ctx context.Context, fingerprint string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[fingerprint]; !exists && len(m.data) >= m.maxEntries {
		m.evictOldest()
	}
	m.data[fingerprint] = entry
	return nil
}

// DeleteOlderThan removes entries created before cutoff.
func (m *MemoryBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.data {
		if cutoff.IsZero() || entry.CreatedAt.Before(cutoff) {
			delete(m.data, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// evictOldest removes the entry with the earliest creation time.
func (m *MemoryBackend) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range m.data {
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		delete(m.data, oldestKey)
	}
}
