//go:build integration
// +build integration

// Package testhelpers builds live dependencies for integration tests.
package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // redis, memcached, sqlite or in_memory
	RedisURL      string
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from the environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	cfg := IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        os.Getenv("WEATHER_API_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		RedisURL:      os.Getenv("REDIS_CONNECTION_STRING"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/15"
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	return cfg
}

// SetupIntegrationStore opens the configured backend, falling back to memory
// when a network backend is unreachable. Cleanup is registered on t.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) cache.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	switch cfg.CacheBackend {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			t.Logf("Redis not available (%v), using in-memory store", err)
			return cache.NewInMemoryStore()
		}
		t.Cleanup(func() { _ = rs.Close() })
		return rs
	case "memcached":
		mc := cache.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(ctx); err != nil {
			t.Logf("Memcached not available (%v), using in-memory store", err)
			return cache.NewInMemoryStore()
		}
		t.Cleanup(func() { _ = mc.Close() })
		return mc
	case "sqlite":
		ss, err := cache.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		t.Cleanup(func() { _ = ss.Close() })
		return ss
	default:
		return cache.NewInMemoryStore()
	}
}

// SetupIntegrationClient creates a live Visual Crossing client.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.WeatherClient {
	t.Helper()
	c, err := client.NewVisualCrossingClient(cfg.APIKey, cfg.APIURL, client.DefaultTimeout)
	if err != nil {
		t.Fatalf("NewVisualCrossingClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService wires a lookup service against the live provider and
// the configured store.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Store) {
	t.Helper()
	store := SetupIntegrationStore(t, cfg)
	return service.NewWeatherService(SetupIntegrationClient(t, cfg), store, time.Minute, 0, false), store
}
