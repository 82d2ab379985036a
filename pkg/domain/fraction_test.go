package domain

import (
	"errors"
	"math"
	"testing"
)

func TestParseFraction(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"0", 0},
		{"1/4", 0.25},
		{"+1/4", 0.25},
		{"-1/4", -0.25},
		{"-1/8", -0.125},
		{"+3/8", 0.375},
		{"1 1/2", 1.5},
		{"-2 3/16", -2.1875},
		{" +1/2 ", 0.5},
		{"3", 3},
	}
	for _, tc := range cases {
		got, err := ParseFraction(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("parse %q: got %v want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseFractionRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "+", "-", "1/0", "a/b", "1//2", "1 x/2", "--1/4", "1/-4"} {
		if _, err := ParseFraction(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		} else {
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError for %q, got %T", raw, err)
			}
		}
	}
}
