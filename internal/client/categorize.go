package client

import (
	"errors"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as the weatherApiErrorsTotal label.
const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey ErrorCategory = "invalid_api_key"
	ErrorCategoryRateLimited   ErrorCategory = "rate_limited"
	ErrorCategoryUpstream4xx   ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx   ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing       ErrorCategory = "parsing"
	ErrorCategoryCircuitOpen   ErrorCategory = "circuit_open"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps a client error to a stable ErrorCategory for metrics.
// Classification for callers uses errors.Is on the sentinels; this is labels only.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrTimeout) {
		return ErrorCategoryTimeout
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return ErrorCategoryInvalidAPIKey
		case se.StatusCode == 429:
			return ErrorCategoryRateLimited
		case se.StatusCode >= 500:
			return ErrorCategoryUpstream5xx
		default:
			return ErrorCategoryUpstream4xx
		}
	}

	if errors.Is(err, ErrMalformedPayload) {
		return ErrorCategoryParsing
	}

	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrorCategoryInvalidAPIKey
	}

	if errors.Is(err, ErrRequestFailed) {
		return ErrorCategoryNetwork
	}

	return ErrorCategoryUnknown
}
