package service

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// checkLength trims s and checks its length in characters.
func checkLength(field, s string, min, max int) (string, error) {
	s = strings.TrimSpace(s)
	if n := utf8.RuneCountInString(s); n < min || n > max {
		if min == 0 {
			return "", invalid("%s must be at most %d characters", field, max)
		}
		return "", invalid("%s must be %d-%d characters", field, min, max)
	}
	return s, nil
}
