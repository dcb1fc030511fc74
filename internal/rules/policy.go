// Package rules holds the marketplace business rules: commission rate
// resolution, payout eligibility and amount limits, seller risk scoring,
// registration checks and request rate limiting.
package rules

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy is the configurable input of every rule.
type Policy struct {
	DefaultCommissionRate decimal.Decimal
	CategoryRates         map[string]decimal.Decimal

	MinPayout        int64 // in cents
	MaxPayout        int64 // in cents
	MinRequestAmount int64 // approved balance needed before requesting, in cents
	PayoutCooldown   time.Duration
	MaxFailedPayouts int

	FraudChargebackThreshold int
	NewSellerPeriod          time.Duration
}

// DefaultPolicy returns the stock marketplace policy.
func DefaultPolicy() Policy {
	return Policy{
		DefaultCommissionRate:    decimal.NewFromInt(10),
		CategoryRates:            map[string]decimal.Decimal{},
		MinPayout:                1000,
		MaxPayout:                5000000,
		MinRequestAmount:         2500,
		PayoutCooldown:           7 * 24 * time.Hour,
		MaxFailedPayouts:         3,
		FraudChargebackThreshold: 10,
		NewSellerPeriod:          30 * 24 * time.Hour,
	}
}

// Evaluator applies a Policy. It holds no mutable state.
type Evaluator struct {
	policy Policy
}

func NewEvaluator(policy Policy) *Evaluator {
	if policy.CategoryRates == nil {
		policy.CategoryRates = map[string]decimal.Decimal{}
	}
	return &Evaluator{policy: policy}
}

// Policy returns a copy of the active policy.
func (e *Evaluator) Policy() Policy {
	return e.policy
}
