// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals so that sums across many records stay
// exact. Rounding happens only when a value is presented.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered decimal string to a non-negative decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Zero is
// allowed. Returns ErrEmptyAmount for blank input and ErrInvalidAmount for
// anything that is not a plain non-negative number.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("0")     -> 0, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	// decimal also accepts exponents; forms only produce digits and a point
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Fixed2 formats d with exactly two decimal places ("30.00").
func Fixed2(d decimal.Decimal) string {
	return d.StringFixed(2)
}
