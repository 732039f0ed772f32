package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/config"
)

func TestOpenStore(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.Config
		check   func(cache.Store) bool
		wantErr bool
	}{
		{
			name:  "in_memory",
			cfg:   config.Config{CacheBackend: "in_memory"},
			check: func(s cache.Store) bool { _, ok := s.(*cache.InMemoryStore); return ok },
		},
		{
			name:  "redis",
			cfg:   config.Config{CacheBackend: "redis", RedisURL: "redis://" + mr.Addr() + "/0"},
			check: func(s cache.Store) bool { _, ok := s.(*cache.RedisStore); return ok },
		},
		{
			name:  "sqlite",
			cfg:   config.Config{CacheBackend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "c.db")},
			check: func(s cache.Store) bool { _, ok := s.(*cache.SQLiteStore); return ok },
		},
		{
			name:    "redis unreachable",
			cfg:     config.Config{CacheBackend: "redis", RedisURL: "redis://127.0.0.1:1/0"},
			wantErr: true,
		},
		{
			name:    "unknown",
			cfg:     config.Config{CacheBackend: "dynamo"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			cfg := tt.cfg
			store, err := openStore(ctx, &cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("openStore() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("openStore() error = %v", err)
			}
			if c, ok := store.(io.Closer); ok {
				t.Cleanup(func() { _ = c.Close() })
			}
			if !tt.check(store) {
				t.Errorf("openStore() returned %T", store)
			}
		})
	}
}

func TestPurgeLoop_StopsOnCancel(t *testing.T) {
	store, err := cache.NewSQLiteStore(filepath.Join(t.TempDir(), "c.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		purgeLoop(ctx, store, 5*time.Millisecond, zap.NewNop())
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purgeLoop did not return after cancel")
	}
}
