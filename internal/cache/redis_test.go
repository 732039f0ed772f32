package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// TestRedisStore_GetSet verifies values round-trip under the plain lowercase key with a TTL.
func TestRedisStore_GetSet(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "bengaluru", `{"city":"Bengaluru"}`, 12*time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := s.Get(ctx, "bengaluru")
	if err != nil || !ok {
		t.Fatalf("Get() = (%q, %v, %v), want hit", got, ok, err)
	}
	if got != `{"city":"Bengaluru"}` {
		t.Errorf("Get() = %q, want stored value", got)
	}
	if ttl := mr.TTL("bengaluru"); ttl != 12*time.Hour {
		t.Errorf("TTL = %v, want 12h", ttl)
	}
}

// TestRedisStore_Get_Miss verifies redis.Nil maps to a plain miss.
func TestRedisStore_Get_Miss(t *testing.T) {
	s, _ := newTestRedisStore(t)

	_, ok, err := s.Get(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false")
	}
}

// TestRedisStore_Expiry verifies entries disappear once the TTL elapses.
func TestRedisStore_Expiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_ = s.Set(ctx, "pune", "v", time.Minute)
	mr.FastForward(2 * time.Minute)

	if _, ok, _ := s.Get(ctx, "pune"); ok {
		t.Error("Get() ok = true after TTL elapsed")
	}
}

// TestRedisStore_ServerDown verifies outages surface as ErrUnavailable.
func TestRedisStore_ServerDown(t *testing.T) {
	s, mr := newTestRedisStore(t)
	mr.Close()

	_, _, err := s.Get(context.Background(), "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get() error = %v, want ErrUnavailable", err)
	}
	err = s.Set(context.Background(), "k", "v", time.Minute)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Set() error = %v, want ErrUnavailable", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping() error = nil with server closed")
	}
}

func TestNewRedisStore_BadURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "not-a-url://x"); err == nil {
		t.Error("NewRedisStore() error = nil, want parse error")
	}
}

// TestNewRedisStoreFromClient verifies a pre-built client is used as is and
// is not pinged at construction.
func TestNewRedisStoreFromClient(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	if err := s.Set(ctx, "mumbai", `{"city":"Mumbai"}`, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, err := mr.Get("mumbai"); err != nil || got != `{"city":"Mumbai"}` {
		t.Errorf("server value = (%q, %v), want stored value", got, err)
	}

	mr.Close()
	if _, _, err := s.Get(ctx, "mumbai"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get() error = %v, want ErrUnavailable", err)
	}

	down := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer down.Close()
	if err := down.Ping(ctx); err == nil {
		t.Error("Ping() error = nil for unreachable server")
	}
}
