package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store.
// It's the default store and suitable for single-server deployments.
// For multi-server deployments, use RedisStore, SQLStore or S3Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*storedEntry
	closed  bool
	done    chan struct{}
	now     func() time.Time
}

type storedEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithCleanupInterval sets how often expired entries are removed.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.cleanupInterval = d
	}
}

// WithMemoryClock sets the time source used for expiry.
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.now = now
	}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{
		cleanupInterval: time.Minute,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := &MemoryStore{
		entries: make(map[string]*storedEntry),
		done:    make(chan struct{}),
		now:     cfg.now,
	}

	go store.cleanupLoop(cfg.cleanupInterval)
	return store
}

// Save stores data with a time to live.
func (m *MemoryStore) Save(_ context.Context, id string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if ttl <= 0 {
		delete(m.entries, id)
		return nil
	}

	// Copy so callers can reuse their buffer.
	m.entries[id] = &storedEntry{
		data:      append([]byte(nil), data...),
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

// Load retrieves data if it exists and hasn't expired.
func (m *MemoryStore) Load(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	e, ok := m.entries[id]
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, nil
	}
	return append([]byte(nil), e.data...), nil
}

// Delete removes an entry from the store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.entries, id)
	return nil
}

// Close shuts down the store and releases resources.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.done)
	m.entries = nil
	return nil
}

// Count returns the number of entries in the store, expired or not.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.done:
			return
		}
	}
}

// cleanup removes expired entries.
func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	now := m.now()
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
		}
	}
}
