package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/config"
	httphandler "github.com/kjstillabower/weather-lookup-service/internal/http"
	"github.com/kjstillabower/weather-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/service"
	"github.com/kjstillabower/weather-lookup-service/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	state := lifecycle.New()

	weatherClient, err := client.NewVisualCrossingClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), float64(to))
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(breaker)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	// Background loops (limiter sweeps, sqlite purge, periodic warming) stop with this context.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	openCtx, openCancel := context.WithTimeout(bgCtx, 5*time.Second)
	store, err := openStore(openCtx, cfg)
	openCancel()
	if err != nil {
		logger.Fatal("cache backend", zap.String("backend", cfg.CacheBackend), zap.Error(err))
	}
	logger.Info("cache backend ready", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))

	if sqliteStore, ok := store.(*cache.SQLiteStore); ok {
		go purgeLoop(bgCtx, sqliteStore, cfg.SQLitePurgeInterval, logger)
	}

	weatherService := service.NewWeatherService(weatherClient, store, cfg.CacheTTL, cfg.MaxCityLength, cfg.CoalesceEnabled)

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}
	if cfg.WarmCache && len(cfg.TrackedCities) > 0 {
		warmer := cache.NewWarmer(weatherService, logger)
		warmCtx, warmCancel := context.WithTimeout(bgCtx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.TrackedCities); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(bgCtx, cfg.TrackedCities, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	healthConfig := &httphandler.HealthConfig{
		Window:           cfg.HealthWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		Version:          cfg.Version,
	}
	if pinger, ok := store.(cache.Pinger); ok {
		healthConfig.CachePing = pinger.Ping
	}
	if breaker != nil {
		healthConfig.BreakerState = func() string { return breaker.State().String() }
	}

	tracker := traffic.NewTracker(cfg.HealthWindow)
	handler := httphandler.NewHandler(weatherService, tracker, state, healthConfig, logger)

	weatherLimiter := httphandler.NewClientLimiter("weather", cfg.RateLimitWeatherPerHour)
	defaultLimiter := httphandler.NewClientLimiter("default", cfg.RateLimitDefaultPerHour)
	for _, l := range []*httphandler.ClientLimiter{weatherLimiter, defaultLimiter} {
		if l != nil {
			go l.Run(bgCtx, cfg.RateLimitSweepInterval)
		}
	}

	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Logger:         logger,
		InFlight:       inFlight,
		WeatherLimiter: weatherLimiter,
		DefaultLimiter: defaultLimiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	remaining := inFlight.Count()
	logger.Info("waiting for in-flight requests", zap.Int64("count", remaining))
	observability.ShutdownInFlightRequests.Set(float64(remaining))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}
	bgCancel()

	var closers []io.Closer
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}
	if err := observability.FlushTelemetry(context.Background(), logger, closers...); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// openStore builds the configured cache backend. Network backends are pinged
// once so a bad address fails at startup rather than on the first lookup.
func openStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case "memcached":
		mc := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err := mc.Ping(ctx); err != nil {
			_ = mc.Close()
			return nil, err
		}
		return mc, nil
	case "sqlite":
		ss, err := cache.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return ss, nil
	case "in_memory":
		return cache.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// purgeLoop deletes expired SQLite rows every interval until ctx is done.
func purgeLoop(ctx context.Context, store *cache.SQLiteStore, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx)
			if err != nil {
				logger.Warn("sqlite purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("sqlite purge", zap.Int64("removed", n))
			}
		}
	}
}
