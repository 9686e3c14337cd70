package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a cache Store backed by a shared Redis instance. TTL and
// expiry are delegated entirely to Redis; entries are stored as
// self-describing JSON (status, headers, body) since Redis storage is
// schemaless.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *slog.Logger
}

// NewRedisStore creates a Redis-backed cache store using the given client.
// The store owns closing the client.
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: "cache:",
		logger:    logger,
	}
}

// Get returns the entry for key, or (nil, nil) if absent. An entry that can
// no longer be decoded is deleted and reported as a miss so the request
// proceeds to the live handler.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("Evicting undecodable cache entry", "key", key, "error", err)
		s.client.Del(ctx, s.keyPrefix+key)
		return nil, nil
	}

	return &entry, nil
}

// Set stores the entry under key; Redis expires it after ttl.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	entry.ExpiresAt = time.Now().Add(ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}

	if err := s.client.Set(ctx, s.keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes the entry for key, if present.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Clear removes every entry under this store's prefix. It scans rather than
// flushing the database, which is shared with the rate limiter's keys.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache clear: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache clear scan: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache clear: %w", err)
		}
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
