package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "weather:"

// maxRelativeExp is the largest expiration memcached treats as relative seconds.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedStore implements Store using memcached.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// maxMemcachedKeyLen is the protocol limit on key length.
const maxMemcachedKeyLen = 250

// memcachedKey hex-encodes the cache key so spaces, control characters and
// non-ASCII runes are safe on the wire and distinct keys stay distinct. Keys
// whose encoding would exceed the protocol limit are stored under a sha256 digest.
func memcachedKey(k string) string {
	enc := keyPrefix + hex.EncodeToString([]byte(k))
	if len(enc) <= maxMemcachedKeyLen {
		return enc
	}
	sum := sha256.Sum256([]byte(k))
	return keyPrefix + "sha256:" + hex.EncodeToString(sum[:])
}

// Get implements Store.Get.
func (s *MemcachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	item, err := s.client.Get(memcachedKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: memcached get: %v", ErrUnavailable, err)
	}
	return string(item.Value), true, nil
}

// Set implements Store.Set.
func (s *MemcachedStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.client.Set(&memcache.Item{
		Key:        memcachedKey(key),
		Value:      []byte(value),
		Expiration: expirationSeconds(ttl),
	})
	if err != nil {
		return fmt.Errorf("%w: memcached set: %v", ErrUnavailable, err)
	}
	return nil
}

// expirationSeconds converts ttl to memcached's relative expiration, falling
// back to one hour when ttl is not representable.
func expirationSeconds(ttl time.Duration) int32 {
	sec := int64(ttl / time.Second)
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return int32(sec)
}

// Ping checks if memcached is reachable.
func (s *MemcachedStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.Ping()
}

// Close closes idle memcached connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
