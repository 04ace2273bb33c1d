package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry is the per-key window state. Count never decreases within a window;
// an entry is replaced wholesale when a request arrives after WindowResetAt.
type Entry struct {
	Count         int
	WindowResetAt time.Time
}

// Store holds key -> Entry mappings for the lifetime of the process.
// Implementations must not fail Get/Put for capacity reasons; by contract a
// store has no eviction. The per-key read-modify-write cycle is serialized
// by the Limiter, not the store.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, entry Entry) error
}

// MemoryStore is the default in-process store. State is scoped to one
// running instance; horizontally scaled deployments undercount because each
// instance keeps its own map. Entries are never deleted unless a janitor is
// explicitly started, so the map grows with the number of distinct keys
// seen. Both properties are documented limitations, not bugs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot copies the current entries, for the admin inspection endpoint.
func (s *MemoryStore) Snapshot() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Sweep removes entries whose window elapsed before now. Only called by the
// janitor; never part of the request path.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if now.After(e.WindowResetAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired entries every interval until ctx is cancelled.
// It is opt-in: without it the store keeps the contractual unbounded-growth
// behavior.
func (s *MemoryStore) StartJanitor(ctx context.Context, clock Clock, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep(clock.Now())
			}
		}
	}()
}
