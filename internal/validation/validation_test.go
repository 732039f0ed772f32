package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCity_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
		{"newlines", "\n \r\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input, 100)
			if !errors.Is(err, ErrCityEmpty) {
				t.Errorf("error = %v, want ErrCityEmpty", err)
			}
		})
	}
}

func TestValidateCity_TooLong(t *testing.T) {
	_, err := ValidateCity(strings.Repeat("a", 101), 100)
	if !errors.Is(err, ErrCityTooLong) {
		t.Errorf("error = %v, want ErrCityTooLong", err)
	}

	// runes, not bytes
	if _, err := ValidateCity(strings.Repeat("é", 100), 100); err != nil {
		t.Errorf("100 runes error = %v, want nil", err)
	}
}

func TestValidateCity_NoLimit(t *testing.T) {
	if _, err := ValidateCity(strings.Repeat("a", 1000), 0); err != nil {
		t.Errorf("maxLen 0 error = %v, want nil", err)
	}
}

func TestValidateCity_ControlChars(t *testing.T) {
	for _, in := range []string{"Pu\x00ne", "Pu\nne", "Pune\x7f"} {
		if _, err := ValidateCity(in, 100); !errors.Is(err, ErrCityInvalidChars) {
			t.Errorf("ValidateCity(%q) error = %v, want ErrCityInvalidChars", in, err)
		}
	}
}

func TestValidateCity_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Bengaluru", "Bengaluru"},
		{"  New York  ", "New York"},
		{"St. John's, NL", "St. John's, NL"},
		{"São Paulo", "São Paulo"},
		{"東京", "東京"},
		{"Winston-Salem", "Winston-Salem"},
	}
	for _, tc := range tests {
		got, err := ValidateCity(tc.input, 100)
		if err != nil {
			t.Errorf("ValidateCity(%q) error = %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ValidateCity(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
