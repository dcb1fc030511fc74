// Package money converts between decimal amounts and the int64 minor units
// (cents) used throughout the domain.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FromDecimal converts d to cents. Amounts with more than two decimal
// places are rejected rather than silently rounded.
func FromDecimal(d decimal.Decimal) (int64, error) {
	if !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("amount %s has more than 2 decimal places", d.String())
	}
	return d.Shift(2).IntPart(), nil
}

// RoundToCents converts d to cents rounding half away from zero.
func RoundToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// Parse parses a decimal string such as "45.10" into cents.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// ToDecimal converts cents to a decimal with two implied places.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents as a fixed two-place string, e.g. "45.00".
func Format(cents int64) string {
	return ToDecimal(cents).StringFixed(2)
}

// Percentage returns rate percent of cents, rounded half-up to the cent.
// Inputs are non-negative so half away from zero equals half-up.
func Percentage(cents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(rate).Div(hundred).Round(0).IntPart()
}

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCurrency reports whether code is a three-letter alphabetic code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
