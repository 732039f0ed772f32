package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// Prefetcher is implemented by the service layer: it runs a full lookup for
// city and reports anything other than a cache or upstream hit as an error.
// Declared here to avoid a dependency cycle on the service package.
type Prefetcher interface {
	Prefetch(ctx context.Context, city string) error
}

// Warmer populates the cache for a fixed list of cities.
type Warmer struct {
	prefetcher Prefetcher
	logger     *zap.Logger
}

// NewWarmer creates a Warmer. logger may be nil.
func NewWarmer(prefetcher Prefetcher, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{prefetcher: prefetcher, logger: logger}
}

// Warm looks up every city concurrently. Returns the joined errors of failed cities.
func (w *Warmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("cities", len(cities)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			if err := w.prefetcher.Prefetch(ctx, city); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", city, err)
			}
		}(city)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// WarmPeriodic runs Warm immediately and then every interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, cities []string, interval time.Duration) error {
	if err := w.Warm(ctx, cities); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, cities); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
