package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// RouterOptions configures NewRouter. Nil limiters disable rate limiting on their routes.
type RouterOptions struct {
	Logger         *zap.Logger
	InFlight       *InFlightTracker
	WeatherLimiter *ClientLimiter
	DefaultLimiter *ClientLimiter
	RequestTimeout time.Duration
}

// NewRouter wires the handler's routes and middleware.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware(opts.InFlight))

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	hardcoded := RateLimitMiddleware("/weather/hardcoded", opts.DefaultLimiter, h.tracker)(http.HandlerFunc(h.GetHardcoded))
	router.Handle("/weather/hardcoded", hardcoded).Methods(http.MethodGet)

	weather := RateLimitMiddleware("/weather", opts.WeatherLimiter, h.tracker)(
		TimeoutMiddleware(opts.RequestTimeout)(http.HandlerFunc(h.GetWeather)))
	router.Handle("/weather", weather).Methods(http.MethodGet)

	return router
}
