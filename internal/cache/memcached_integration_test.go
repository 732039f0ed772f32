//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"
)

// TestMemcachedStore_GetSet_Integration verifies round-trips against a local memcached.
func TestMemcachedStore_GetSet_Integration(t *testing.T) {
	s := NewMemcachedStore("localhost:11211", 500*time.Millisecond, 2)
	defer s.Close()

	ctx := context.Background()
	if err := s.Set(ctx, "new york", `{"city":"New York"}`, time.Minute); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	got, ok, err := s.Get(ctx, "new york")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != `{"city":"New York"}` {
		t.Errorf("Get() = %q, want stored value", got)
	}
}

// TestMemcachedStore_Get_Miss_Integration verifies a missing key reads as ok=false.
func TestMemcachedStore_Get_Miss_Integration(t *testing.T) {
	s := NewMemcachedStore("localhost:11211", 500*time.Millisecond, 2)
	defer s.Close()

	_, ok, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Skipf("Get failed (memcached may not be running): %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}
