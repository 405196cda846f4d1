package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store persists window counters keyed by rate_limit:<sourceId>.
// Get returns (nil, nil) for absent or expired keys.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, e *Entry, ttl time.Duration) error
	// Sweep removes expired entries. Called from periodic maintenance.
	Sweep(ctx context.Context) (removed int, err error)
	Close() error
}

type memEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore is the in-process, strictly consistent store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time

	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	closeOnce     sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryNow overrides the clock (testing).
func WithMemoryNow(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a MemoryStore with a background sweep every 5 minutes.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]memEntry),
		now:         time.Now,
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cleanupTicker = time.NewTicker(5 * time.Minute)
	go func() {
		for {
			select {
			case <-s.cleanupDone:
				return
			case <-s.cleanupTicker.C:
				_, _ = s.Sweep(context.Background())
			}
		}
	}()
	return s
}

// Get returns a copy of the stored entry, or nil when absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	me, ok := s.entries[key]
	if !ok || s.now().After(me.expiresAt) {
		return nil, nil
	}
	e := me.entry
	return &e, nil
}

// Put stores a copy of e with the given TTL.
func (s *MemoryStore) Put(_ context.Context, key string, e *Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{entry: *e, expiresAt: s.now().Add(ttl)}
	return nil
}

// Sweep drops expired entries.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, me := range s.entries {
		if now.After(me.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of live entries. Useful for monitoring and tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the sweep goroutine. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.cleanupTicker.Stop()
		close(s.cleanupDone)
	})
	return nil
}

var _ Store = (*MemoryStore)(nil)
