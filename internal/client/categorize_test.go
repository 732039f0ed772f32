package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout", fmt.Errorf("%w: deadline", ErrTimeout), ErrorCategoryTimeout},
		{"unauthorized", &StatusError{StatusCode: 401}, ErrorCategoryInvalidAPIKey},
		{"rate limited", &StatusError{StatusCode: 429}, ErrorCategoryRateLimited},
		{"bad request", &StatusError{StatusCode: 400}, ErrorCategoryUpstream4xx},
		{"server error", &StatusError{StatusCode: 503}, ErrorCategoryUpstream5xx},
		{"malformed", fmt.Errorf("%w: not json", ErrMalformedPayload), ErrorCategoryParsing},
		{"connection refused", fmt.Errorf("%w: dial tcp: connection refused", ErrRequestFailed), ErrorCategoryNetwork},
		{"invalid key", ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
		{"other", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusError_UnwrapsToRequestFailed(t *testing.T) {
	err := fmt.Errorf("fetch: %w", &StatusError{StatusCode: 500})
	if !errors.Is(err, ErrRequestFailed) {
		t.Error("StatusError should unwrap to ErrRequestFailed")
	}
}
