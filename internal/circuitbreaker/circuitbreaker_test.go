package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []string
	cb := New(Config{
		FailureThreshold: 2,
		Timeout:          time.Hour,
		Component:        "test",
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		if err := cb.Call(func() error { return errBoom }, nil); !errors.Is(err, errBoom) {
			t.Fatalf("Call() error = %v, want errBoom", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil }, nil)
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn ran while circuit open")
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", transitions)
	}
}

func TestCircuitBreaker_UncountedErrorsPassThrough(t *testing.T) {
	notFound := errors.New("not found")
	cb := New(Config{FailureThreshold: 1, Timeout: time.Hour})

	err := cb.Call(func() error { return notFound }, func(err error) bool { return !errors.Is(err, notFound) })
	if !errors.Is(err, notFound) {
		t.Fatalf("Call() error = %v, want notFound", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed (error not countable)", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond})

	_ = cb.Call(func() error { return errBoom }, nil)
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}
	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half_open after timeout", cb.State())
	}
	if err := cb.Call(func() error { return nil }, nil); err != nil {
		t.Fatalf("half-open Call() error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed after successful half-open call", cb.State())
	}
}

func TestState_String(t *testing.T) {
	if StateHalfOpen.String() != "half_open" || State(9).String() != "unknown" {
		t.Error("unexpected State.String() output")
	}
}
