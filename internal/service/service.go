package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-lookup-service/internal/cache"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// DefaultTTL is how long a fetched record stays cached.
const DefaultTTL = 12 * time.Hour

// DefaultMaxCityLength bounds the accepted city length in runes.
const DefaultMaxCityLength = 100

// WeatherService answers city lookups cache-aside: the store first, the
// upstream client on a miss, writing successful results back with a TTL.
// It is safe for concurrent use; concurrent misses for one city may each call
// upstream and the last cache write wins.
type WeatherService struct {
	client     client.WeatherClient
	store      cache.Store
	ttl        time.Duration
	maxCityLen int
	misses     *stampedeTracker
	flight     *singleflight.Group // nil unless coalescing is enabled
}

// NewWeatherService creates a WeatherService. ttl <= 0 selects DefaultTTL and
// maxCityLen <= 0 selects DefaultMaxCityLength. With coalesce set, concurrent
// misses for the same cache key share a single upstream call.
func NewWeatherService(c client.WeatherClient, store cache.Store, ttl time.Duration, maxCityLen int, coalesce bool) *WeatherService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxCityLen <= 0 {
		maxCityLen = DefaultMaxCityLength
	}
	s := &WeatherService{
		client:     c,
		store:      store,
		ttl:        ttl,
		maxCityLen: maxCityLen,
		misses:     newStampedeTracker(),
	}
	if coalesce {
		s.flight = &singleflight.Group{}
	}
	return s
}

// CacheKey is the cache key for a city: trimmed and lowercased, so case and
// surrounding whitespace variants share one entry.
func CacheKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// Lookup resolves weather for cityInput. It never returns an untyped failure:
// every path ends in one of the Outcome values.
func (s *WeatherService) Lookup(ctx context.Context, cityInput string) Result {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	city, err := validation.ValidateCity(cityInput, s.maxCityLen)
	if err != nil {
		return s.finish(logger, "", start, Result{Outcome: OutcomeInvalidInput, Err: err})
	}
	key := CacheKey(city)

	if rec, ok := s.readCache(ctx, logger, key); ok {
		return s.finish(logger, key, start, Result{Outcome: OutcomeCacheHit, Record: rec})
	}

	if n := s.misses.RecordMiss(key); n > 1 {
		label := observability.MetricCityLabel(key)
		observability.CacheStampedeDetectedTotal.WithLabelValues(label).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(label).Observe(float64(n))
	}
	defer s.misses.RecordDone(key)

	logger.Debug("cache miss, fetching upstream", zap.String("city", key))
	payload, err := s.fetch(ctx, key, city)
	if err != nil {
		return s.finish(logger, key, start, Result{Outcome: classifyUpstreamError(err), Err: err})
	}

	rec, ok := models.NewWeatherRecord(payload, city)
	if !ok {
		return s.finish(logger, key, start, Result{Outcome: OutcomeNotFound})
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return s.finish(logger, key, start, Result{Outcome: OutcomeInternalError, Err: fmt.Errorf("encode record: %w", err)})
	}
	s.writeCache(ctx, logger, key, string(raw))

	return s.finish(logger, key, start, Result{Outcome: OutcomeUpstreamHit, Record: rec})
}

// Prefetch runs a lookup and reports anything but a hit as an error. Used by the cache warmer.
func (s *WeatherService) Prefetch(ctx context.Context, city string) error {
	return s.Lookup(ctx, city).Failure()
}

// readCache returns the cached record for key. Store errors and undecodable
// values both read as a miss.
func (s *WeatherService) readCache(ctx context.Context, logger *zap.Logger, key string) (models.WeatherRecord, bool) {
	getStart := time.Now()
	raw, ok, err := s.store.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed, treating as miss", zap.String("city", key), zap.Error(err))
		return models.WeatherRecord{}, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
	if !ok {
		return models.WeatherRecord{}, false
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		observability.CacheCorruptEntriesTotal.Inc()
		logger.Warn("corrupt cache entry, treating as miss", zap.String("city", key), zap.Error(err))
		return models.WeatherRecord{}, false
	}
	return rec, true
}

// writeCache stores raw under key. Failures are logged and counted only; the
// lookup result does not depend on them.
func (s *WeatherService) writeCache(ctx context.Context, logger *zap.Logger, key, raw string) {
	setStart := time.Now()
	if err := s.store.Set(ctx, key, raw, s.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.String("city", key), zap.Error(err))
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
}

func (s *WeatherService) fetch(ctx context.Context, key, city string) (models.ForecastPayload, error) {
	if s.flight == nil {
		return s.client.Fetch(ctx, city)
	}
	// The shared call outlives any single caller; the client bounds it with its
	// own timeout.
	fctx := context.WithoutCancel(ctx)
	v, err, shared := s.flight.Do(key, func() (interface{}, error) {
		return s.client.Fetch(fctx, city)
	})
	if shared {
		observability.RequestCoalescingSharedTotal.Inc()
	}
	if err != nil {
		return models.ForecastPayload{}, err
	}
	return v.(models.ForecastPayload), nil
}

func (s *WeatherService) finish(logger *zap.Logger, key string, start time.Time, r Result) Result {
	observability.RecordLookup(key, r.Outcome.String())
	fields := []zap.Field{
		zap.String("city", key),
		zap.String("outcome", r.Outcome.String()),
		zap.Duration("duration", time.Since(start)),
	}
	switch r.Outcome {
	case OutcomeInternalError:
		logger.Error("weather lookup failed", append(fields, zap.Error(r.Err))...)
	case OutcomeUpstreamTimeout, OutcomeUpstreamUnavailable:
		logger.Warn("weather lookup failed", append(fields, zap.Error(r.Err))...)
	default:
		logger.Debug("weather served", fields...)
	}
	return r
}

// classifyUpstreamError maps client sentinels onto outcomes. Unknown errors
// are this process's problem, not the provider's.
func classifyUpstreamError(err error) Outcome {
	switch {
	case errors.Is(err, client.ErrTimeout):
		return OutcomeUpstreamTimeout
	case errors.Is(err, client.ErrRequestFailed):
		return OutcomeUpstreamUnavailable
	default:
		return OutcomeInternalError
	}
}

// decodeRecord parses a stored value strictly: a single JSON object with only
// known fields and a city. Cache contents are treated as untrusted input.
func decodeRecord(raw string) (models.WeatherRecord, error) {
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return models.WeatherRecord{}, errors.New("cached value is not a JSON object")
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var rec models.WeatherRecord
	if err := dec.Decode(&rec); err != nil {
		return models.WeatherRecord{}, fmt.Errorf("decode cached record: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return models.WeatherRecord{}, errors.New("trailing data after cached record")
	}
	if rec.City == "" {
		return models.WeatherRecord{}, errors.New("cached record has no city")
	}
	return rec, nil
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
