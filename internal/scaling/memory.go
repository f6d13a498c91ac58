package scaling

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state     State
	expiresAt time.Time // zero means no expiry
}

// MemoryStore keeps streak state in process memory with lazy TTL
// expiry. The clock is injectable so tests can drive expiry without
// sleeping.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns a store on the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns a store that reads time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: now}
}

// Get returns the live state for key. Expired entries are dropped on
// read.
func (m *MemoryStore) Get(_ context.Context, key string) (State, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	if e.expiresAt.IsZero() || m.now().Before(e.expiresAt) {
		return e.state, true
	}

	m.mu.Lock()
	if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	return State{}, false
}

// Set stores state under key, expiring after ttl when ttl is positive.
func (m *MemoryStore) Set(_ context.Context, key string, state State, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{state: state, expiresAt: expires}
	m.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, including ones whose TTL
// has lapsed but which no Get has swept yet.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
