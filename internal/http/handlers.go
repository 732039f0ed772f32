package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/service"
	"github.com/kjstillabower/weather-lookup-service/internal/traffic"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// Error bodies returned by the weather endpoints.
const (
	msgMissingCity        = "Missing required query parameter: city"
	msgInvalidCity        = "Invalid query parameter: city"
	msgNotFound           = "City not found or no weather data available"
	msgUpstreamError      = "There was an error contacting the weather service"
	msgUpstreamTimeout    = "The external weather service timed out"
	msgInternalError      = "Internal server error"
	msgTooManyRequests    = "Too many requests"
	serviceName           = "weather-lookup-service"
	defaultHealthWindow   = 60 * time.Second
	defaultDegradedErrPct = 50
)

// hardcodedWeather is the fixed demo payload served by GET /weather/hardcoded.
var hardcodedWeather = models.WeatherRecord{
	City:               "Bengaluru",
	TemperatureCelsius: models.Float64(28),
	Description:        "Clear sky",
	Humidity:           models.Float64(60),
}

// WeatherLookup is the core the weather handler calls.
type WeatherLookup interface {
	Lookup(ctx context.Context, city string) service.Result
}

// HealthConfig holds thresholds and dependency checks for the health handler.
type HealthConfig struct {
	// Window is the sliding window the upstream error rate is computed over.
	Window time.Duration
	// DegradedErrorPct is the error percentage at or above which the service reports degraded.
	DegradedErrorPct int
	Version          string
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
	// BreakerState, when set, reports the upstream circuit breaker state.
	BreakerState func() string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	lookup           WeatherLookup
	tracker          *traffic.Tracker
	state            *lifecycle.State
	health           HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil tracker or state gets a fresh one;
// a nil health config uses defaults.
func NewHandler(lookup WeatherLookup, tracker *traffic.Tracker, state *lifecycle.State, health *HealthConfig, logger *zap.Logger) *Handler {
	if tracker == nil {
		tracker = traffic.NewTracker(0)
	}
	if state == nil {
		state = lifecycle.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{lookup: lookup, tracker: tracker, state: state, logger: logger}
	if health != nil {
		h.health = *health
	}
	if h.health.Window <= 0 {
		h.health.Window = defaultHealthWindow
	}
	if h.health.DegradedErrorPct <= 0 {
		h.health.DegradedErrorPct = defaultDegradedErrPct
	}
	if h.health.Version == "" {
		h.health.Version = "dev"
	}
	return h
}

type weatherResponse struct {
	Source string               `json:"source"`
	Data   models.WeatherRecord `json:"data"`
}

// GetWeather handles GET /weather?city=<name>.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	res := h.lookup.Lookup(r.Context(), r.URL.Query().Get("city"))

	switch res.Outcome {
	case service.OutcomeCacheHit, service.OutcomeUpstreamHit:
		h.tracker.RecordSuccess()
		writeJSON(w, http.StatusOK, weatherResponse{Source: res.Source(), Data: res.Record})
	case service.OutcomeInvalidInput:
		if errors.Is(res.Err, validation.ErrCityEmpty) {
			writeError(w, http.StatusBadRequest, msgMissingCity)
			return
		}
		writeError(w, http.StatusBadRequest, msgInvalidCity)
	case service.OutcomeNotFound:
		h.tracker.RecordSuccess()
		writeError(w, http.StatusNotFound, msgNotFound)
	case service.OutcomeUpstreamTimeout:
		h.tracker.RecordError()
		writeError(w, http.StatusGatewayTimeout, msgUpstreamTimeout)
	case service.OutcomeUpstreamUnavailable:
		h.tracker.RecordError()
		writeError(w, http.StatusServiceUnavailable, msgUpstreamError)
	default:
		h.tracker.RecordError()
		writeError(w, http.StatusInternalServerError, msgInternalError)
	}
}

// GetHardcoded handles GET /weather/hardcoded. It never touches the cache or upstream.
func (h *Handler) GetHardcoded(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hardcodedWeather)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	}
	if h.health.CachePing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := h.health.CachePing(ctx); err != nil {
			checks["cache"] = "unhealthy"
			observability.LoggerFromContext(r.Context()).Warn("cache ping failed", zap.Error(err))
		} else {
			checks["cache"] = "healthy"
		}
		cancel()
	}
	if h.health.BreakerState != nil {
		checks["circuitBreaker"] = h.health.BreakerState()
	}

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":           result.status,
		"service":          serviceName,
		"version":          h.health.Version,
		"checks":           checks,
		"rateLimitDenials": h.tracker.DenialCount(h.health.Window),
		"uptime":           h.state.Uptime().Round(time.Second).String(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > degraded > healthy. A cache outage alone does not degrade
// the service since lookups fall through to upstream.
func (h *Handler) computeHealthStatus() healthResult {
	if h.state.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	errCount, total := h.tracker.ErrorRate(h.health.Window)
	if total > 0 && errCount*100 >= h.health.DegradedErrorPct*total {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
