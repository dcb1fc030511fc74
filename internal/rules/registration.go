package rules

import (
	"strings"
	"unicode/utf8"

	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/go-playground/validator/v10"
)

const (
	minBusinessNameLength = 3
	maxBusinessNameLength = 255
)

var validate = validator.New()

// Registration is the seller-provided onboarding data.
type Registration struct {
	BusinessName string
	Email        string
	PayoutMethod payout.Method
}

// ValidateSellerRegistration returns every problem with a registration.
func ValidateSellerRegistration(r Registration) []string {
	var reasons []string

	name := strings.TrimSpace(r.BusinessName)
	if n := utf8.RuneCountInString(name); n < minBusinessNameLength || n > maxBusinessNameLength {
		reasons = append(reasons, "business_name must be between 3 and 255 characters")
	}
	if err := validate.Var(r.Email, "required,email"); err != nil {
		reasons = append(reasons, "Invalid business_email format")
	}
	if !r.PayoutMethod.Valid() {
		reasons = append(reasons, "payout_method must be one of: bank_transfer, paypal, stripe")
	}
	return reasons
}
