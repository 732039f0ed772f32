package service

import (
	"fmt"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
)

// Outcome tags how a lookup ended.
type Outcome int

const (
	OutcomeInternalError Outcome = iota
	OutcomeCacheHit
	OutcomeUpstreamHit
	OutcomeNotFound
	OutcomeUpstreamTimeout
	OutcomeUpstreamUnavailable
	OutcomeInvalidInput
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCacheHit:
		return "cache_hit"
	case OutcomeUpstreamHit:
		return "upstream_hit"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUpstreamTimeout:
		return "upstream_timeout"
	case OutcomeUpstreamUnavailable:
		return "upstream_unavailable"
	case OutcomeInvalidInput:
		return "invalid_input"
	default:
		return "internal_error"
	}
}

// Result is the tagged result of a lookup. Record is set only for
// OutcomeCacheHit and OutcomeUpstreamHit; Err carries the cause of failures for logging.
type Result struct {
	Outcome Outcome
	Record  models.WeatherRecord
	Err     error
}

// OK reports whether the lookup produced a record.
func (r Result) OK() bool {
	return r.Outcome == OutcomeCacheHit || r.Outcome == OutcomeUpstreamHit
}

// Source is "cache" for cache hits and "api" for fresh upstream results.
func (r Result) Source() string {
	if r.Outcome == OutcomeCacheHit {
		return "cache"
	}
	return "api"
}

// Failure returns nil for hits and a *LookupError otherwise.
func (r Result) Failure() error {
	if r.OK() {
		return nil
	}
	return &LookupError{Outcome: r.Outcome, Err: r.Err}
}

// LookupError reports a failed lookup's outcome.
type LookupError struct {
	Outcome Outcome
	Err     error
}

func (e *LookupError) Error() string {
	if e.Err == nil {
		return e.Outcome.String()
	}
	return fmt.Sprintf("%s: %v", e.Outcome, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
