package cache

import (
	"context"
	"sync"
	"time"

	"github.com/medrx/backend/internal/domain/shared"
)

// claim represents a held key with expiration
type claim struct {
	expiresAt time.Time
}

// InMemoryDedupStore implements shared.DedupStore using an in-memory map.
// Claims are only visible inside one process.
type InMemoryDedupStore struct {
	mu        sync.Mutex
	claims    map[string]claim
	clock     shared.Clock
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryDedupStore creates a new in-memory claim store.
// It starts a background goroutine to drop expired claims.
func NewInMemoryDedupStore() *InMemoryDedupStore {
	return NewInMemoryDedupStoreWithClock(shared.SystemClock{})
}

// NewInMemoryDedupStoreWithClock creates a store that reads time from clock
func NewInMemoryDedupStoreWithClock(clock shared.Clock) *InMemoryDedupStore {
	store := &InMemoryDedupStore{
		claims:   make(map[string]claim),
		clock:    clock,
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Claim marks key as held for ttl. An expired claim is overwritten.
func (s *InMemoryDedupStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if c, ok := s.claims[key]; ok && now.Before(c.expiresAt) {
		return false, nil
	}
	s.claims[key] = claim{expiresAt: now.Add(ttl)}
	return true, nil
}

// Release drops the claim on key
func (s *InMemoryDedupStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.claims, key)
	s.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine.
// Safe to call multiple times.
func (s *InMemoryDedupStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryDedupStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryDedupStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, c := range s.claims {
		if !now.Before(c.expiresAt) {
			delete(s.claims, key)
		}
	}
}

// Size returns the number of claims held (for testing/monitoring)
func (s *InMemoryDedupStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

// Ensure InMemoryDedupStore implements DedupStore
var _ shared.DedupStore = (*InMemoryDedupStore)(nil)
