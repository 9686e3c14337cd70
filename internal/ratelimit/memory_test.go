package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWindowStore_RecordAndCount(t *testing.T) {
	store := NewMemoryWindowStore(5 * time.Minute)
	defer store.Close()

	now := time.Now()
	ctx := context.Background()

	count, err := store.RecordAndCount(ctx, "client:/api/chat", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.RecordAndCount(ctx, "client:/api/chat", time.Minute, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryWindowStore_TrimsExpiredEvents(t *testing.T) {
	store := NewMemoryWindowStore(5 * time.Minute)
	defer store.Close()

	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		_, err := store.RecordAndCount(ctx, "key", time.Minute, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	// 61 seconds after the first event, the first event has left the window
	count, err := store.RecordAndCount(ctx, "key", time.Minute, base.Add(61*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5, count, "first event should have expired, four old plus one new remain")

	// Far in the future everything old is gone
	count, err = store.RecordAndCount(ctx, "key", time.Minute, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryWindowStore_WindowBoundaryInclusive(t *testing.T) {
	store := NewMemoryWindowStore(5 * time.Minute)
	defer store.Close()

	ctx := context.Background()
	base := time.Now()

	_, err := store.RecordAndCount(ctx, "key", time.Minute, base)
	require.NoError(t, err)

	// An event aged exactly one window is still counted
	count, err := store.RecordAndCount(ctx, "key", time.Minute, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryWindowStore_IndependentKeys(t *testing.T) {
	store := NewMemoryWindowStore(5 * time.Minute)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		_, err := store.RecordAndCount(ctx, "a:/api/chat", time.Minute, now)
		require.NoError(t, err)
	}

	count, err := store.RecordAndCount(ctx, "b:/api/chat", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "keys must not share windows")
}

func TestMemoryWindowStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryWindowStore(5 * time.Minute)
	defer store.Close()

	ctx := context.Background()
	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("client-%d", id%5)
			for j := 0; j < perGoroutine; j++ {
				_, err := store.RecordAndCount(ctx, key, time.Minute, time.Now())
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	// All events land inside one window, so every key sees its full total.
	count, err := store.RecordAndCount(ctx, "client-0", time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, goroutines/5*perGoroutine+1, count, "no recorded event may be lost")
}

func TestMemoryWindowStore_Close(t *testing.T) {
	store := NewMemoryWindowStore(100 * time.Millisecond)
	require.NoError(t, store.Close())
	// Double close should not panic
	require.NoError(t, store.Close())
}

func TestMemoryWindowStore_CleanupKeepsLongWindows(t *testing.T) {
	// A cleanup interval far shorter than the policy window must not reset
	// anyone's budget: three events in a one-hour window survive many cleanup
	// ticks of idleness.
	store := NewMemoryWindowStore(20 * time.Millisecond)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.RecordAndCount(ctx, "register-client", time.Hour, time.Now())
		require.NoError(t, err)
	}

	time.Sleep(100 * time.Millisecond)

	count, err := store.RecordAndCount(ctx, "register-client", time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, count, "idle time below the window must not clear recorded events")
}

func TestMemoryWindowStore_EvictStale(t *testing.T) {
	store := NewMemoryWindowStore(time.Hour)
	defer store.Close()

	ctx := context.Background()
	old := time.Now().Add(-3 * time.Hour)
	_, err := store.RecordAndCount(ctx, "stale", time.Minute, old)
	require.NoError(t, err)

	store.evictStale()

	store.mu.Lock()
	_, exists := store.entries["stale"]
	store.mu.Unlock()
	assert.False(t, exists, "stale keys should be evicted")
}
