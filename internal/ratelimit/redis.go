package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims expired events, records the new one, counts the
// window, and refreshes the key's expiry as a single atomic unit. Running the
// four operations as separate round trips would let two concurrent callers
// both observe a pre-insert count below the limit and both be admitted when
// only one slot remained; a Lua script closes that race because Redis
// executes it without interleaving other commands on the key.
//
// KEYS[1] - window key
// ARGV[1] - exclusive lower bound of the window, milliseconds
// ARGV[2] - event score (now), milliseconds
// ARGV[3] - unique event member
// ARGV[4] - key expiry, milliseconds
var slidingWindowScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, ARGV[1])
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[3])
local count = redis.call("ZCARD", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return count
`)

// RedisWindowStore is a WindowStore backed by a shared Redis instance, so
// every gateway replica counts against the same windows. Events live in a
// sorted set per key, scored by their millisecond timestamp; the set expires
// shortly after the window so idle keys reclaim themselves.
type RedisWindowStore struct {
	client     *redis.Client
	keyPrefix  string
	instanceID string
	seq        atomic.Uint64
}

// NewRedisWindowStore creates a Redis-backed window store using the given
// client. The caller owns the client's configuration; this store owns closing it.
func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{
		client:    client,
		keyPrefix: "ratelimit:",
		// Distinguishes members recorded in the same nanosecond by
		// different replicas.
		instanceID: uuid.NewString()[:8],
	}
}

// RecordAndCount executes the sliding-window script. Errors are returned to
// the caller, which decides the fail-open policy; the event may or may not
// have been recorded when an error occurs, and is never rolled back.
func (s *RedisWindowStore) RecordAndCount(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	nowMillis := now.UnixMilli()
	// Exclusive bound: an event aged exactly one window is still inside it.
	cutoff := "(" + strconv.FormatInt(nowMillis-window.Milliseconds(), 10)
	member := s.member(now)

	count, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.keyPrefix + key},
		cutoff,
		nowMillis,
		member,
		window.Milliseconds()+1000,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("sliding window script: %w", err)
	}

	return count, nil
}

// member builds a unique sorted-set member for one event. ZADD overwrites on
// equal members, so uniqueness is what keeps every event counted: the
// instance ID separates replicas and the sequence number separates concurrent
// callers within one replica, which can share a nanosecond timestamp.
func (s *RedisWindowStore) member(now time.Time) string {
	return strconv.FormatInt(now.UnixNano(), 10) +
		"-" + s.instanceID +
		"-" + strconv.FormatUint(s.seq.Add(1), 10)
}

// Close closes the underlying Redis client.
func (s *RedisWindowStore) Close() error {
	return s.client.Close()
}
