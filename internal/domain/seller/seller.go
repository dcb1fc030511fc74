package seller

import (
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VerificationStatus represents where a seller is in onboarding
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationVerified  VerificationStatus = "verified"
	VerificationRejected  VerificationStatus = "rejected"
	VerificationSuspended VerificationStatus = "suspended"
)

var transitions = map[VerificationStatus][]VerificationStatus{
	VerificationPending:   {VerificationVerified, VerificationRejected},
	VerificationVerified:  {VerificationSuspended},
	VerificationSuspended: {VerificationVerified},
	VerificationRejected:  {VerificationPending},
}

// Seller is a customer registered to sell on the marketplace.
type Seller struct {
	ID                 uuid.UUID
	CustomerID         string
	BusinessName       string
	Email              string
	Phone              *string
	TaxID              *string
	VerificationStatus VerificationStatus
	IsActive           bool
	CommissionRate     *decimal.Decimal // overrides category and default rates when set
	PayoutMethod       payout.Method
	Rating             *float64
	SuspensionCount    int
	ChargebackCount    int
	Notes              *string
	Metadata           map[string]any
	VerifiedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// New returns a pending, active seller. Field validation is done by the
// registration rules before New is called.
func New(customerID, businessName, email string, method payout.Method) *Seller {
	now := time.Now()
	return &Seller{
		ID:                 uuid.New(),
		CustomerID:         customerID,
		BusinessName:       businessName,
		Email:              email,
		VerificationStatus: VerificationPending,
		IsActive:           true,
		PayoutMethod:       method,
		Metadata:           make(map[string]any),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// TransitionTo moves the seller to a new verification status
func (s *Seller) TransitionTo(status VerificationStatus) error {
	allowed := false
	for _, next := range transitions[s.VerificationStatus] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition seller from "+string(s.VerificationStatus)+" to "+string(status),
			errors.ErrInvalidStateTransition,
		)
	}
	s.VerificationStatus = status
	s.UpdatedAt = time.Now()
	return nil
}

// Verify approves a pending seller or reinstates a suspended one.
func (s *Seller) Verify() error {
	if err := s.TransitionTo(VerificationVerified); err != nil {
		return err
	}
	now := time.Now()
	s.VerifiedAt = &now
	s.IsActive = true
	return nil
}

func (s *Seller) Reject(reason string) error {
	if err := s.TransitionTo(VerificationRejected); err != nil {
		return err
	}
	s.setNote(reason)
	return nil
}

// Suspend blocks payouts for a verified seller.
func (s *Seller) Suspend(reason string) error {
	if err := s.TransitionTo(VerificationSuspended); err != nil {
		return err
	}
	s.SuspensionCount++
	s.IsActive = false
	s.setNote(reason)
	return nil
}

// SetCommissionRate sets or clears the seller-specific rate.
func (s *Seller) SetCommissionRate(rate *decimal.Decimal) error {
	if rate != nil && (rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100))) {
		return errors.ErrInvalidRate
	}
	s.CommissionRate = rate
	s.UpdatedAt = time.Now()
	return nil
}

// IsVerified reports whether the seller passed verification.
func (s *Seller) IsVerified() bool {
	return s.VerificationStatus == VerificationVerified
}

func (s *Seller) setNote(note string) {
	if note != "" {
		s.Notes = &note
	}
}
