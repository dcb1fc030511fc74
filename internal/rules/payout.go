package rules

import (
	"fmt"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/money"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
)

// Eligibility lists every reason a seller may not request a payout.
type Eligibility struct {
	Eligible bool
	Reasons  []string
}

// AmountCheck is the result of CheckAmountRange.
type AmountCheck struct {
	Valid  bool
	Reason string
}

// CheckPayoutEligibility evaluates all seller-level payout rules and
// collects every violation.
func (e *Evaluator) CheckPayoutEligibility(s *seller.Seller, lastPayoutAt *time.Time, failedPayouts int, now time.Time) Eligibility {
	var reasons []string

	if s == nil {
		return Eligibility{Reasons: []string{"Seller not found"}}
	}
	if !s.IsVerified() {
		reasons = append(reasons, "Seller must be verified to request payouts")
	}
	if !s.IsActive {
		reasons = append(reasons, "Seller account is not active")
	}
	if lastPayoutAt != nil && e.policy.PayoutCooldown > 0 {
		remaining := lastPayoutAt.Add(e.policy.PayoutCooldown).Sub(now)
		if remaining > 0 {
			days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
			reasons = append(reasons, fmt.Sprintf("Must wait %d more days before requesting another payout", days))
		}
	}
	if e.policy.MaxFailedPayouts > 0 && failedPayouts >= e.policy.MaxFailedPayouts {
		reasons = append(reasons, fmt.Sprintf("Seller account has too many failed payouts (%d/%d)", failedPayouts, e.policy.MaxFailedPayouts))
	}

	return Eligibility{Eligible: len(reasons) == 0, Reasons: reasons}
}

// CheckAmountRange validates a payout amount against the min and max.
func (e *Evaluator) CheckAmountRange(amount int64) AmountCheck {
	if amount < e.policy.MinPayout {
		return AmountCheck{Reason: "Minimum payout amount is $" + money.ToDecimal(e.policy.MinPayout).String()}
	}
	if e.policy.MaxPayout > 0 && amount > e.policy.MaxPayout {
		return AmountCheck{Reason: "Maximum payout amount is $" + money.ToDecimal(e.policy.MaxPayout).String()}
	}
	return AmountCheck{Valid: true}
}

// CheckRequestThreshold reports a reason when the approved balance backing
// a request is below the minimum needed to request a payout.
func (e *Evaluator) CheckRequestThreshold(available int64) (string, bool) {
	if available < e.policy.MinRequestAmount {
		return fmt.Sprintf("At least $%s in approved commissions is required to request a payout (have $%s)",
			money.ToDecimal(e.policy.MinRequestAmount).String(), money.Format(available)), false
	}
	return "", true
}
