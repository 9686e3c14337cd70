package ratelimit

import (
	"context"
	"sync"
	"time"
)

// windowEntry holds the event timestamps for one (client, path) key, plus the
// last access time and policy window that cleanup decisions are based on.
type windowEntry struct {
	events   []time.Time
	lastSeen time.Time
	window   time.Duration
}

// MemoryWindowStore is an in-process WindowStore guarded by a single mutex.
// Each key owns an ordered slice of event timestamps; expired events are
// trimmed from the front on every access, so a call costs O(expired) and
// amortizes to O(1). A background goroutine periodically evicts keys that
// have not been touched within 2x the cleanup interval.
type MemoryWindowStore struct {
	cleanupInterval time.Duration

	mu      sync.Mutex
	entries map[string]*windowEntry
	done    chan struct{}
	closed  bool
}

// NewMemoryWindowStore creates an in-process window store and starts its
// cleanup goroutine.
func NewMemoryWindowStore(cleanupInterval time.Duration) *MemoryWindowStore {
	m := &MemoryWindowStore{
		cleanupInterval: cleanupInterval,
		entries:         make(map[string]*windowEntry),
		done:            make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// RecordAndCount trims events older than the window, records the new event,
// and returns the in-window count including it. The mutex makes the whole
// sequence atomic with respect to concurrent callers.
func (m *MemoryWindowStore) RecordAndCount(_ context.Context, key string, window time.Duration, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &windowEntry{}
		m.entries[key] = e
	}

	cutoff := now.Add(-window)
	expired := 0
	for expired < len(e.events) && e.events[expired].Before(cutoff) {
		expired++
	}
	e.events = e.events[expired:]
	e.events = append(e.events, now)
	e.lastSeen = now
	e.window = window

	return len(e.events), nil
}

// Close stops the background cleanup goroutine.
func (m *MemoryWindowStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// cleanup periodically evicts keys that have not been accessed within
// 2x the cleanup interval.
func (m *MemoryWindowStore) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

// evictStale removes keys that have gone quiet. A key is only reclaimed once
// its newest event is outside its own window, so long-window policies (an
// hour for registration) survive idle periods far beyond the cleanup
// interval; deleting earlier would hand an over-limit client a fresh window.
func (m *MemoryWindowStore) evictStale() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		idle := 2 * m.cleanupInterval
		if e.window > idle {
			idle = e.window
		}
		if e.lastSeen.Before(now.Add(-idle)) {
			delete(m.entries, key)
		}
	}
}
