package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory snapshot store. Snapshots do not survive a
// server restart, which is fine for development and single-node deploys
// that only need resume-after-refresh.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*storedSnapshot
	closed    bool
	done      chan struct{}
}

type storedSnapshot struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
}

// WithCleanupInterval sets how often expired snapshots are removed.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.cleanupInterval = d
	}
}

// NewMemoryStore creates a new in-memory snapshot store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{
		cleanupInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := &MemoryStore{
		snapshots: make(map[string]*storedSnapshot),
		done:      make(chan struct{}),
	}

	go store.cleanupLoop(cfg.cleanupInterval)
	return store
}

// Save stores snapshot data with an expiration time.
func (s *MemoryStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed{}
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	s.snapshots[sessionID] = &storedSnapshot{
		data:      stored,
		expiresAt: expiresAt,
	}
	return nil
}

// Load retrieves snapshot data if it exists and hasn't expired.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed{}
	}

	snap, exists := s.snapshots[sessionID]
	if !exists {
		return nil, nil
	}
	if time.Now().After(snap.expiresAt) {
		return nil, nil
	}

	data := make([]byte, len(snap.data))
	copy(data, snap.data)
	return data, nil
}

// Delete removes a snapshot from the store.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed{}
	}

	delete(s.snapshots, sessionID)
	return nil
}

// Touch extends the expiration time of a snapshot.
func (s *MemoryStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed{}
	}

	if snap, exists := s.snapshots[sessionID]; exists {
		snap.expiresAt = expiresAt
	}
	return nil
}

// SaveAll stores multiple snapshots at once.
func (s *MemoryStore) SaveAll(ctx context.Context, snapshots map[string]SnapshotData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed{}
	}

	for id, sd := range snapshots {
		stored := make([]byte, len(sd.Data))
		copy(stored, sd.Data)
		s.snapshots[id] = &storedSnapshot{
			data:      stored,
			expiresAt: sd.ExpiresAt,
		}
	}
	return nil
}

// Close shuts down the store and releases resources.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)
	s.snapshots = nil
	return nil
}

// Count returns the number of stored snapshots, including expired ones
// not yet collected by the cleanup loop.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// cleanupLoop periodically removes expired snapshots.
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

// cleanup removes all expired snapshots.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	now := time.Now()
	for id, snap := range s.snapshots {
		if now.After(snap.expiresAt) {
			delete(s.snapshots, id)
		}
	}
}
