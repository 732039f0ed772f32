package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// DefaultBaseURL is the Visual Crossing timeline endpoint; the city is appended as a path segment.
const DefaultBaseURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 5 * time.Second

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 4 << 20

// WeatherClient fetches the forecast timeline for a city. One call, no retries.
type WeatherClient interface {
	Fetch(ctx context.Context, city string) (models.ForecastPayload, error)
}

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrTimeout: the provider did not answer within the request timeout.
	ErrTimeout = errors.New("upstream timeout")
	// ErrRequestFailed: transport failure or a 4xx/5xx status.
	ErrRequestFailed = errors.New("upstream request failed")
	// ErrMalformedPayload: a 2xx body that is not a timeline object.
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

// StatusError carries the HTTP status of a failed provider response.
// It unwraps to ErrRequestFailed.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", ErrRequestFailed, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrRequestFailed }

// VisualCrossingClient implements WeatherClient against the Visual Crossing timeline API.
type VisualCrossingClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewVisualCrossingClient validates the key and builds a client. Empty baseURL
// selects DefaultBaseURL; non-positive timeout selects DefaultTimeout.
func NewVisualCrossingClient(apiKey, baseURL string, timeout time.Duration) (*VisualCrossingClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &VisualCrossingClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps every call in cb. Not-found style outcomes never
// reach the breaker as failures because they are successful responses.
func (c *VisualCrossingClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// Fetch issues one GET for city and decodes the timeline. A response without
// days is a successful, empty payload; deciding "not found" is the caller's job.
func (c *VisualCrossingClient) Fetch(ctx context.Context, city string) (models.ForecastPayload, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, city)
	}

	var payload models.ForecastPayload
	err := c.breaker.Call(func() error {
		var err error
		payload, err = c.callAPI(ctx, city)
		return err
	}, isBreakerFailure)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(ErrorCategoryCircuitOpen)).Inc()
		return models.ForecastPayload{}, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return payload, err
}

// isBreakerFailure counts transport and 5xx failures. A 4xx is the caller's
// problem (bad city, bad key) and says nothing about provider health.
func isBreakerFailure(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRequestFailed)
}

func (c *VisualCrossingClient) callAPI(ctx context.Context, city string) (models.ForecastPayload, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.ForecastPayload{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		status := "error"
		if errors.Is(err, ErrTimeout) {
			status = "timeout"
		}
		c.observe(status, start, err)
		return models.ForecastPayload{}, err
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		err := &StatusError{StatusCode: resp.StatusCode}
		c.observe(status, start, err)
		return models.ForecastPayload{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		err = classifyTransportError(err)
		c.observe("error", start, err)
		return models.ForecastPayload{}, fmt.Errorf("read response body: %w", err)
	}

	payload, err := decodePayload(body)
	if err != nil {
		c.observe(status, start, err)
		return models.ForecastPayload{}, err
	}
	c.observe(status, start, nil)
	return payload, nil
}

func (c *VisualCrossingClient) observe(status string, start time.Time, err error) {
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
	}
}

func (c *VisualCrossingClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + url.PathEscape(city))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("unitGroup", "metric")
	params.Set("key", c.apiKey)
	params.Set("contentType", "json")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// decodePayload accepts a JSON object whose "days" (if present) is an array.
// Anything else, including trailing garbage, is ErrMalformedPayload.
func decodePayload(body []byte) (models.ForecastPayload, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		return models.ForecastPayload{}, fmt.Errorf("%w: body is not a JSON object", ErrMalformedPayload)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	var raw struct {
		Address *string              `json:"address"`
		Days    []models.ForecastDay `json:"days"`
	}
	if err := dec.Decode(&raw); err != nil {
		return models.ForecastPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dec.More() {
		return models.ForecastPayload{}, fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}
	p := models.ForecastPayload{Days: raw.Days}
	if raw.Address != nil {
		p.Address = *raw.Address
	}
	return p, nil
}

// classifyTransportError folds deadline and net timeouts into ErrTimeout and
// everything else into ErrRequestFailed, keeping the cause in the message.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrRequestFailed, err)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
