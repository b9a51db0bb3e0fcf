package auth

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore is a process-local SessionStore. The original backing
// store was Redis; this keeps the same contract (atomic per-key operations,
// TTL-enforced expiry) behind the SessionStore interface so a networked
// store can be swapped in.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]storeEntry
	now     func() time.Time
}

type storeEntry struct {
	value     string
	expiresAt time.Time
}

func (e storeEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		entries: make(map[string]storeEntry),
		now:     time.Now,
	}
}

var _ SessionStore = (*MemorySessionStore)(nil)

// Put stores value under key, overwriting any prior entry.
func (s *MemorySessionStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = storeEntry{value: value, expiresAt: expiresAt}
	return nil
}

// Get returns the live value for key. Expired entries are removed lazily and
// reported as absent.
func (s *MemorySessionStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return "", ErrSessionExpired
	}

	if entry.expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock: the entry may have been replaced.
		if current, ok := s.entries[key]; ok && current.expired(s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return "", ErrSessionExpired
	}

	return entry.value, nil
}

// Revoke deletes the entry for key; absent keys are a no-op.
func (s *MemorySessionStore) Revoke(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len reports the number of stored entries, including not-yet-collected
// expired ones.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartJanitor sweeps expired entries every interval until ctx is done.
func (s *MemorySessionStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *MemorySessionStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
		}
	}
}
