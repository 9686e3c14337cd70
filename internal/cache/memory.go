package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a bounded in-process cache store. Expired entries are
// removed lazily when read; when an insertion would exceed the capacity, the
// entry with the earliest expiry is evicted. That is eviction by remaining
// lifetime, not by access recency: a popular entry close to expiry can be
// evicted before a cold one stored a moment ago. The approximation keeps the
// store free of access bookkeeping and is acceptable because entries are
// short-lived by policy.
type MemoryStore struct {
	maxSize int

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryStore creates an in-process store holding at most maxSize entries.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		maxSize: maxSize,
		entries: make(map[string]*Entry),
	}
}

// Get returns the entry for key, or (nil, nil) if absent or expired.
// Expired entries are deleted on the way out.
func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if e.Expired(time.Now()) {
		delete(m.entries, key)
		return nil, nil
	}
	return e, nil
}

// Set stores the entry under key with the given ttl, evicting the
// earliest-expiring entry first if the store is full.
func (m *MemoryStore) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxSize {
		m.evictEarliest()
	}

	entry.ExpiresAt = time.Now().Add(ttl)
	m.entries[key] = entry
	return nil
}

// Delete removes the entry for key, if present.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Clear removes all entries.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	return nil
}

// Close releases nothing; the store has no background resources.
func (m *MemoryStore) Close() error {
	return nil
}

// evictEarliest removes the single entry with the earliest expiry.
// Caller must hold the mutex.
func (m *MemoryStore) evictEarliest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range m.entries {
		if oldestKey == "" || e.ExpiresAt.Before(oldest) {
			oldestKey = key
			oldest = e.ExpiresAt
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}
