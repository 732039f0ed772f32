package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Call when the breaker rejects the call without running it.
var ErrOpen = errors.New("circuit breaker open")

// State is the circuit breaker state (Closed, HalfOpen, Open).
type State int

// State values, ordered by severity so they can be exported as a gauge.
const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold trial calls allowed (and required) in half-open before closing.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout       time.Duration
	Component     string
	OnStateChange func(from, to State)
}

// CircuitBreaker protects upstream calls by opening after consecutive failures.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a CircuitBreaker, applying defaults for zero values.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cfg.Component,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
	}
	if cfg.OnStateChange != nil {
		onChange := cfg.OnStateChange
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onChange(fromGobreaker(from), fromGobreaker(to))
		}
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call runs fn when the circuit allows it. A rejected call returns ErrOpen.
// Errors for which countable returns false are passed through without counting as failures.
func (c *CircuitBreaker) Call(fn func() error, countable func(error) bool) error {
	var fnErr error
	_, err := c.cb.Execute(func() (interface{}, error) {
		fnErr = fn()
		if fnErr != nil && countable != nil && !countable(fnErr) {
			return nil, nil
		}
		return nil, fnErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	if err != nil {
		return err
	}
	return fnErr
}

// State returns the current state.
func (c *CircuitBreaker) State() State {
	return fromGobreaker(c.cb.State())
}
