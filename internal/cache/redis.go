package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
	TTL      time.Duration
}

// RedisBackend stores entries as JSON values with a TTL.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisBackendFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "rag:"
	}
	return &RedisBackend{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisBackend) key(fingerprint string) string {
	return r.prefix + Key("chunk", fingerprint)
}

// Load retrieves an entry.
func (r *RedisBackend) Load(ctx context.Context, fingerprint string) (*Entry, error) {
	val, err := r.client.Get(ctx, r.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, nil
}

// Save stores an entry. SET replaces the value atomically.
func (r *RedisBackend) Save(ctx context.Context, fingerprint string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(fingerprint), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeleteOlderThan scans chunk keys and removes stale ones. Each delete runs
// under WATCH so an entry rewritten during the scan survives.
func (r *RedisBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	pattern := r.prefix + Key("chunk", "*")
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()

	removed := 0
	for iter.Next(ctx) {
		key := iter.Val()
		if cutoff.IsZero() {
			n, err := r.client.Del(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("redis delete: %w", err)
			}
			removed += int(n)
			continue
		}

		deleted, err := r.deleteIfStale(ctx, key, cutoff)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}

func (r *RedisBackend) deleteIfStale(ctx context.Context, key string, cutoff time.Time) (bool, error) {
	deleted := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var entry Entry
		if err := json.Unmarshal(val, &entry); err == nil && !entry.CreatedAt.Before(cutoff) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis evict %s: %w", key, err)
	}
	return deleted, nil
}

// Close closes the Redis connection.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
