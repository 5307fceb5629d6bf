package ratecell

import (
	"context"
	"sync"
	"time"
)

// UpdateFunc maps the stored theoretical arrival time for a bucket (0 when
// absent or expired) to the value to persist. Returning persist=false leaves
// the stored state untouched. An expiry <= 0 with persist=true means the
// bucket is fully idle again; the store drops the key instead of writing.
//
// A store may invoke fn more than once while resolving a write conflict, so
// fn must not carry side effects beyond its captured result; only the
// invocation whose write succeeds is observed.
type UpdateFunc func(stored int64) (next int64, expiry time.Duration, persist bool)

// StateStore maps a bucket key to a single persisted timestamp with an
// expiry. Update is an atomic read-modify-write: for any one key the read
// seen by fn and the conditional write derived from it behave as if executed
// under a per-key lock. Different keys proceed fully in parallel.
type StateStore interface {
	// Update atomically applies fn to the bucket state for key.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Peek returns the stored arrival time for key, or 0 when absent.
	Peek(ctx context.Context, key string) (int64, error)
}

// InMemoryStore implements StateStore with a map of per-key entries, each
// guarded by its own mutex. Expiry is evaluated lazily against the injected
// TimeSource, with an optional background sweep. Suitable for single-instance
// deployments.
type InMemoryStore struct {
	clock   TimeSource
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	mu        sync.Mutex
	arrival   int64
	expiresAt int64 // instant in TimeSource nanoseconds; 0 = nothing stored
	gone      bool  // entry removed from the map while a caller held it
}

var _ StateStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an in-memory store reading expiry time from clock.
func NewInMemoryStore(clock TimeSource) *InMemoryStore {
	return &InMemoryStore{
		clock:   clock,
		entries: make(map[string]*memEntry),
	}
}

// Update atomically applies fn to the bucket state for key.
func (s *InMemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	if key == "" {
		return ErrInvalidKey
	}

	for {
		e := s.entry(key)
		e.mu.Lock()
		if e.gone {
			// Removed between lookup and lock; take a fresh entry.
			e.mu.Unlock()
			continue
		}

		now := s.clock.Now()
		stored := e.arrival
		if e.expiresAt != 0 && e.expiresAt <= now {
			stored = 0
		}

		next, expiry, persist := fn(stored)
		if !persist {
			e.mu.Unlock()
			return nil
		}
		if expiry <= 0 {
			e.gone = true
			e.mu.Unlock()
			s.remove(key, e)
			return nil
		}
		e.arrival = next
		e.expiresAt = now + int64(expiry)
		e.mu.Unlock()
		return nil
	}
}

// Peek returns the stored arrival time for key, or 0 when absent or expired.
func (s *InMemoryStore) Peek(_ context.Context, key string) (int64, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone || e.expiresAt == 0 || e.expiresAt <= s.clock.Now() {
		return 0, nil
	}
	return e.arrival, nil
}

// Count returns the number of keys currently held, including expired entries
// not yet swept.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Cleanup removes entries whose expiry has passed. Returns the number removed.
func (s *InMemoryStore) Cleanup() int {
	now := s.clock.Now()

	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	removed := 0
	for _, key := range keys {
		s.mu.RLock()
		e, ok := s.entries[key]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		expired := !e.gone && e.expiresAt != 0 && e.expiresAt <= now
		if expired {
			e.gone = true
		}
		e.mu.Unlock()

		if expired {
			s.remove(key, e)
			removed++
		}
	}
	return removed
}

// StartBackgroundCleanup starts a goroutine that periodically sweeps expired
// entries. Call the returned function to stop it.
func (s *InMemoryStore) StartBackgroundCleanup(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

// entry returns the live entry for key, creating it if needed.
func (s *InMemoryStore) entry(key string) *memEntry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &memEntry{}
	s.entries[key] = e
	return e
}

// remove deletes key only while it still maps to e.
func (s *InMemoryStore) remove(key string, e *memEntry) {
	s.mu.Lock()
	if s.entries[key] == e {
		delete(s.entries, key)
	}
	s.mu.Unlock()
}
