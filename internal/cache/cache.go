package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable wraps backend failures (connection refused, timeouts) so callers
// can tell a store outage from a plain miss.
var ErrUnavailable = errors.New("cache store unavailable")

// Store is a string key-value store with per-entry expiration.
// Get returns ("", false, nil) on a miss. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Pinger is implemented by backends that can report reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InMemoryStore implements Store with a map guarded by a RWMutex.
// Expired entries are removed on access.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time
}

// NewInMemoryStore creates an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (s *InMemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		// re-check: a concurrent Set may have replaced the entry
		if cur, ok := s.data[key]; ok && !s.now().Before(cur.expiresAt) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key until ttl elapses. Overwrites any existing entry.
func (s *InMemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
