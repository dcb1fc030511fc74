package rules

import (
	"fmt"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/seller"
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskAssessment is a 0-100 score, higher is riskier.
type RiskAssessment struct {
	Score int
	Level RiskLevel
	Flags []string
}

// ScoreSellerRisk scores a seller from suspension history, rating,
// chargebacks and account age.
func (e *Evaluator) ScoreSellerRisk(s *seller.Seller, now time.Time) RiskAssessment {
	var (
		score int
		flags []string
	)

	if s.SuspensionCount > 0 {
		score += 20
		flags = append(flags, fmt.Sprintf("%d previous suspensions", s.SuspensionCount))
	}
	if s.Rating != nil && *s.Rating < 3.0 {
		score += 15
		flags = append(flags, fmt.Sprintf("Low rating: %.1f", *s.Rating))
	}
	if e.policy.FraudChargebackThreshold > 0 && s.ChargebackCount >= e.policy.FraudChargebackThreshold {
		score += 25
		flags = append(flags, fmt.Sprintf("High chargebacks: %d", s.ChargebackCount))
	}
	if now.Sub(s.CreatedAt) < e.policy.NewSellerPeriod {
		score += 10
		flags = append(flags, "Very new seller")
	}

	if score > 100 {
		score = 100
	}

	level := RiskHigh
	switch {
	case score < 30:
		level = RiskLow
	case score < 60:
		level = RiskMedium
	}
	return RiskAssessment{Score: score, Level: level, Flags: flags}
}
