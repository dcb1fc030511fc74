package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/audit"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SellerService handles seller onboarding and verification.
type SellerService struct {
	repo         seller.Repository
	evaluator    *rules.Evaluator
	limiter      RateLimiter
	audit        *AuditTrail
	logger       zerolog.Logger
	registration rules.Limit
	now          func() time.Time
}

func NewSellerService(
	repo seller.Repository,
	evaluator *rules.Evaluator,
	limiter RateLimiter,
	auditTrail *AuditTrail,
	logger zerolog.Logger,
	registration rules.Limit,
) *SellerService {
	return &SellerService{
		repo:         repo,
		evaluator:    evaluator,
		limiter:      limiter,
		audit:        auditTrail,
		logger:       logger,
		registration: registration,
		now:          time.Now,
	}
}

// RegisterSellerRequest holds the input for seller registration.
type RegisterSellerRequest struct {
	CustomerID   string
	BusinessName string
	Email        string
	Phone        *string
	TaxID        *string
	PayoutMethod payout.Method
}

// Register creates a pending seller for a customer.
func (s *SellerService) Register(ctx context.Context, req RegisterSellerRequest) (*seller.Seller, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, domainErrors.NewValidationError("customer_id", "cannot be empty")
	}

	decision, err := s.limiter.Allow(ctx, "seller_registration:"+req.CustomerID, s.registration)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, domainErrors.NewDomainError("rate_limited", "too many registration attempts", domainErrors.ErrRateLimited)
	}

	if reasons := rules.ValidateSellerRegistration(rules.Registration{
		BusinessName: req.BusinessName,
		Email:        req.Email,
		PayoutMethod: req.PayoutMethod,
	}); len(reasons) > 0 {
		return nil, domainErrors.NewRuleViolation("invalid_registration", domainErrors.ErrValidationFailed, reasons...)
	}

	existing, err := s.repo.GetByCustomerID(ctx, req.CustomerID)
	if err != nil && !errors.Is(err, domainErrors.ErrSellerNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, domainErrors.ErrSellerAlreadyRegistered
	}

	sel := seller.New(req.CustomerID, strings.TrimSpace(req.BusinessName), strings.ToLower(strings.TrimSpace(req.Email)), req.PayoutMethod)
	sel.Phone = req.Phone
	sel.TaxID = req.TaxID
	if err := s.repo.Create(ctx, sel); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &audit.Event{
		SellerID:    &sel.ID,
		CustomerID:  &sel.CustomerID,
		EntityType:  audit.EntitySeller,
		EntityID:    sel.ID.String(),
		Action:      "register",
		After:       audit.Snapshot(sel),
		Description: fmt.Sprintf("seller %q registered", sel.BusinessName),
	})
	return sel, nil
}

// Verify approves a pending seller or reinstates a suspended one.
func (s *SellerService) Verify(ctx context.Context, id uuid.UUID) (*seller.Seller, error) {
	return s.update(ctx, id, "verify", func(sel *seller.Seller) error {
		return sel.Verify()
	})
}

func (s *SellerService) Reject(ctx context.Context, id uuid.UUID, reason string) (*seller.Seller, error) {
	return s.update(ctx, id, "reject", func(sel *seller.Seller) error {
		return sel.Reject(reason)
	})
}

// Suspend blocks a verified seller from requesting payouts.
func (s *SellerService) Suspend(ctx context.Context, id uuid.UUID, reason string) (*seller.Seller, error) {
	return s.update(ctx, id, "suspend", func(sel *seller.Seller) error {
		return sel.Suspend(reason)
	})
}

// SetCommissionRate sets or, with nil, clears the seller's rate override.
func (s *SellerService) SetCommissionRate(ctx context.Context, id uuid.UUID, rate *decimal.Decimal) (*seller.Seller, error) {
	return s.update(ctx, id, "set_commission_rate", func(sel *seller.Seller) error {
		return sel.SetCommissionRate(rate)
	})
}

func (s *SellerService) Get(ctx context.Context, id uuid.UUID) (*seller.Seller, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByCustomer returns the seller registered by a customer.
func (s *SellerService) GetByCustomer(ctx context.Context, customerID string) (*seller.Seller, error) {
	return s.repo.GetByCustomerID(ctx, customerID)
}

// List returns one page of sellers and the total matching the filter.
func (s *SellerService) List(ctx context.Context, filter seller.ListFilter) ([]*seller.Seller, int, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// AssessRisk scores a seller for fraud review.
func (s *SellerService) AssessRisk(ctx context.Context, id uuid.UUID) (rules.RiskAssessment, error) {
	sel, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return rules.RiskAssessment{}, err
	}
	return s.evaluator.ScoreSellerRisk(sel, s.now()), nil
}

func (s *SellerService) update(ctx context.Context, id uuid.UUID, action string, fn func(*seller.Seller) error) (*seller.Seller, error) {
	sel, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := audit.Snapshot(sel)
	event := &audit.Event{
		SellerID:   &sel.ID,
		CustomerID: &sel.CustomerID,
		EntityType: audit.EntitySeller,
		EntityID:   sel.ID.String(),
		Action:     action,
		Before:     before,
	}

	if err := fn(sel); err != nil {
		s.audit.Failure(ctx, event, err)
		return nil, err
	}
	if err := s.repo.Update(ctx, sel); err != nil {
		return nil, err
	}

	event.After = audit.Snapshot(sel)
	event.Description = fmt.Sprintf("seller is %s", sel.VerificationStatus)
	s.audit.Record(ctx, event)
	s.logger.Info().
		Str("seller_id", sel.ID.String()).
		Str("action", action).
		Str("verification_status", string(sel.VerificationStatus)).
		Msg("seller updated")
	return sel, nil
}
