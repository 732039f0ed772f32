package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when the city length exceeds the maximum.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when the city contains control characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ValidateCity trims the input, enforces maxLen (in runes, 0 = unlimited) and
// rejects control characters. Punctuation is allowed since provider place
// names include apostrophes, dots and commas ("St. John's, NL").
// Returns the trimmed, case-preserved city. Lowercasing for cache keys is left
// to the service layer.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrCityEmpty
	}
	n := 0
	for _, c := range s {
		if unicode.IsControl(c) {
			return "", ErrCityInvalidChars
		}
		n++
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	return s, nil
}
