package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_GetSet(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "bengaluru", `{"city":"Bengaluru"}`, time.Hour); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, "bengaluru")
	if err != nil || !ok {
		t.Fatalf("Get() = (%q, %v, %v), want hit", got, ok, err)
	}
	if got != `{"city":"Bengaluru"}` {
		t.Errorf("unexpected value: %s", got)
	}

	if _, ok, _ := s.Get(ctx, "other"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestSQLiteStore_ExpiryAndPurge(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, "old", "v", time.Minute)
	_ = s.Set(ctx, "fresh", "v", time.Hour)
	now = now.Add(2 * time.Minute)

	if _, ok, _ := s.Get(ctx, "old"); ok {
		t.Error("expected miss for expired entry")
	}
	n, err := s.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Purge() removed %d rows, want 1", n)
	}
	if _, ok, _ := s.Get(ctx, "fresh"); !ok {
		t.Error("fresh entry should survive purge")
	}
}

func TestSQLiteStore_Overwrite(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "k", "first", time.Hour)
	_ = s.Set(ctx, "k", "second", time.Hour)

	got, _, _ := s.Get(ctx, "k")
	if got != "second" {
		t.Errorf("Get() = %q, want second", got)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
