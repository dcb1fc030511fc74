package postgres

import (
	"fmt"
	"strings"

	"github.com/cassiomorais/marketplace/internal/domain/money"
	"github.com/shopspring/decimal"
)

// Money columns are NUMERIC(19,2) and rates NUMERIC(5,2). Both are read
// back as text so no precision passes through float64.

func numericStringToCents(s string) (int64, error) {
	d, err := parseNumeric(s)
	if err != nil {
		return 0, err
	}
	return money.RoundToCents(d), nil
}

func centsToNumericString(cents int64) string {
	return money.Format(cents)
}

func parseRate(s string) (decimal.Decimal, error) {
	return parseNumeric(s)
}

func parseOptionalRate(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseRate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func rateString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalRateString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := rateString(*d)
	return &s
}

func parseNumeric(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty numeric string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}
