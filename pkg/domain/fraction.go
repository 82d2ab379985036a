package domain

import (
	"strconv"
	"strings"
)

// ParseFraction converts a signed fraction string to its decimal value.
// Accepted forms: "0", "3", "-1/4", "+3/8", "1 1/2", "-2 3/16". Whitespace
// around the value is ignored.
func ParseFraction(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ValidationError{Field: "fraction_raw", Message: "empty fraction"}
	}

	sign := 1.0
	switch s[0] {
	case '+':
		s = strings.TrimSpace(s[1:])
	case '-':
		sign = -1.0
		s = strings.TrimSpace(s[1:])
	}
	if s == "" {
		return 0, ValidationError{Field: "fraction_raw", Message: "sign without value"}
	}

	whole := 0.0
	frac := s
	if i := strings.IndexByte(s, ' '); i > 0 {
		w, err := strconv.ParseFloat(s[:i], 64)
		if err != nil || w < 0 {
			return 0, ValidationError{Field: "fraction_raw", Message: "malformed whole part in " + strconv.Quote(raw)}
		}
		whole = w
		frac = strings.TrimSpace(s[i+1:])
	}

	var value float64
	if num, den, ok := strings.Cut(frac, "/"); ok {
		n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errN != nil || errD != nil || n < 0 || d <= 0 {
			return 0, ValidationError{Field: "fraction_raw", Message: "malformed fraction " + strconv.Quote(raw)}
		}
		value = n / d
	} else {
		v, err := strconv.ParseFloat(frac, 64)
		if err != nil || v < 0 {
			return 0, ValidationError{Field: "fraction_raw", Message: "malformed fraction " + strconv.Quote(raw)}
		}
		value = v
	}

	return sign * (whole + value), nil
}
