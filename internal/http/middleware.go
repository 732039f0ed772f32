package http

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/traffic"
)

// CorrelationIDMiddleware reuses the caller's X-Correlation-ID or mints one,
// echoes it back and stores it with a request-scoped logger on the context.
func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get("X-Correlation-ID")
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", corrID)

			ctx := observability.WithCorrelationID(r.Context(), corrID)
			ctx = observability.WithLogger(ctx, logger.With(zap.String("correlation_id", corrID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware records request count, latency and in-flight requests.
// inFlight may be nil.
func MetricsMiddleware(inFlight *InFlightTracker) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			observability.HTTPRequestsInFlight.Inc()
			defer observability.HTTPRequestsInFlight.Dec()
			if inFlight != nil {
				inFlight.Increment()
				defer inFlight.Decrement()
			}

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := routeTemplate(r)
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusCodeString(recorder.statusCode)).Inc()
			observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeTemplate returns the matched mux route template, keeping the route
// label bounded regardless of request paths.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func statusCodeString(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// TimeoutMiddleware sets a deadline on the request context. When exceeded, downstream handlers
// receive context.DeadlineExceeded. Apply only to routes that need it (e.g. /weather).
func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	if timeout <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware rejects with 429 once the caller's bucket in limiter is
// empty. route labels the denial metric. Disabled when limiter is nil.
func RateLimitMiddleware(route string, limiter *ClientLimiter, tracker *traffic.Tracker) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIP(r)
			ok, retryAfter := limiter.Allow(client)
			if !ok {
				observability.LoggerFromContext(r.Context()).Debug("rate limit denied",
					zap.String("client", client), zap.String("route", route))
				observability.RateLimitDeniedTotal.WithLabelValues(route).Inc()
				if tracker != nil {
					tracker.RecordDenied()
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, msgTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
