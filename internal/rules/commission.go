package rules

import (
	"strings"

	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/shopspring/decimal"
)

var (
	minRate = decimal.Zero
	maxRate = decimal.NewFromInt(100)
)

// ResolveCommissionRate picks the seller override, then the category
// override, then the default, and clamps the result to [0, 100].
func (e *Evaluator) ResolveCommissionRate(s *seller.Seller, category string) decimal.Decimal {
	if s != nil && s.CommissionRate != nil {
		return ClampRate(*s.CommissionRate)
	}
	if category != "" {
		if rate, ok := e.policy.CategoryRates[strings.ToLower(category)]; ok {
			return ClampRate(rate)
		}
	}
	return ClampRate(e.policy.DefaultCommissionRate)
}

// ClampRate limits rate to [0, 100].
func ClampRate(rate decimal.Decimal) decimal.Decimal {
	if rate.LessThan(minRate) {
		return minRate
	}
	if rate.GreaterThan(maxRate) {
		return maxRate
	}
	return rate
}
