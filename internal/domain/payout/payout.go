package payout

import (
	"fmt"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/money"
	"github.com/google/uuid"
)

// Status represents the payout status in the state machine
type Status string

const (
	StatusRequested     Status = "requested"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusProcessing    Status = "processing"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// Method is the channel used to transfer funds to the seller.
type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodPayPal       Method = "paypal"
	MethodStripe       Method = "stripe"
)

// Valid reports whether m is a supported payout method.
func (m Method) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodPayPal, MethodStripe:
		return true
	}
	return false
}

// DefaultMaxRetries caps how many failed attempts may be retried.
const DefaultMaxRetries = 3

var transitions = map[Status][]Status{
	StatusRequested:     {StatusPendingReview, StatusCancelled},
	StatusPendingReview: {StatusApproved, StatusCancelled},
	StatusApproved:      {StatusProcessing},
	StatusProcessing:    {StatusCompleted, StatusFailed},
	StatusFailed:        {StatusProcessing, StatusCancelled},
	StatusCompleted:     {}, // Terminal state
	StatusCancelled:     {}, // Terminal state
}

// Payout aggregates approved commissions of one seller into a single transfer.
type Payout struct {
	ID                     uuid.UUID
	SellerID               uuid.UUID
	Amount                 int64 // in cents
	CurrencyCode           string
	CommissionIDs          []uuid.UUID
	Status                 Status
	PaymentMethod          Method
	PaymentReference       *string
	PaymentMetadata        map[string]any
	RequestedAt            time.Time
	ReviewedAt             *time.Time
	ApprovedAt             *time.Time
	ProcessingAt           *time.Time
	CompletedAt            *time.Time
	FailedAt               *time.Time
	CancelledAt            *time.Time
	ReviewedBy             *string
	AdminNotes             *string
	FailureReason          *string
	RetryCount             int
	MaxRetries             int
	ReconciliationRequired bool
	Metadata               map[string]any
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// New validates the request and returns a payout in status requested.
func New(sellerID uuid.UUID, amount int64, currency string, commissionIDs []uuid.UUID, method Method, maxRetries int) (*Payout, error) {
	if sellerID == uuid.Nil {
		return nil, errors.NewValidationError("seller_id", "cannot be empty")
	}
	if amount <= 0 {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}
	currency = money.NormalizeCurrency(currency)
	if !money.ValidCurrency(currency) {
		return nil, errors.ErrInvalidCurrency
	}
	if len(commissionIDs) == 0 {
		return nil, errors.NewValidationError("commission_ids", "at least one commission is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(commissionIDs))
	for _, id := range commissionIDs {
		if _, dup := seen[id]; dup {
			return nil, errors.NewValidationError("commission_ids", "duplicate commission "+id.String())
		}
		seen[id] = struct{}{}
	}
	if !method.Valid() {
		return nil, errors.NewValidationError("payment_method", "must be one of bank_transfer, paypal, stripe")
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	now := time.Now()
	ids := make([]uuid.UUID, len(commissionIDs))
	copy(ids, commissionIDs)
	return &Payout{
		ID:              uuid.New(),
		SellerID:        sellerID,
		Amount:          amount,
		CurrencyCode:    currency,
		CommissionIDs:   ids,
		Status:          StatusRequested,
		PaymentMethod:   method,
		PaymentMetadata: make(map[string]any),
		RequestedAt:     now,
		MaxRetries:      maxRetries,
		Metadata:        make(map[string]any),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CanTransitionTo checks if the payout can transition to the given status
func (p *Payout) CanTransitionTo(newStatus Status) bool {
	for _, allowed := range transitions[p.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// CheckTransition returns the invalid transition error when the payout
// cannot move to newStatus.
func (p *Payout) CheckTransition(newStatus Status) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition payout from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	return nil
}

// TransitionTo transitions the payout to a new status
func (p *Payout) TransitionTo(newStatus Status) error {
	if err := p.CheckTransition(newStatus); err != nil {
		return err
	}

	now := time.Now()
	p.Status = newStatus
	p.UpdatedAt = now

	switch newStatus {
	case StatusApproved:
		p.ApprovedAt = &now
	case StatusProcessing:
		p.ProcessingAt = &now
	case StatusCompleted:
		p.CompletedAt = &now
	case StatusFailed:
		p.FailedAt = &now
	case StatusCancelled:
		p.CancelledAt = &now
	}
	return nil
}

// ApproveReview advances one review step: requested -> pending_review,
// then pending_review -> approved.
func (p *Payout) ApproveReview(adminID, notes string) error {
	var next Status
	switch p.Status {
	case StatusRequested:
		next = StatusPendingReview
	case StatusPendingReview:
		next = StatusApproved
	default:
		return p.TransitionTo(StatusApproved)
	}
	if err := p.TransitionTo(next); err != nil {
		return err
	}
	p.markReviewed(adminID, notes)
	return nil
}

// Reject cancels a payout that is still under review.
func (p *Payout) Reject(adminID, notes string) error {
	if p.Status != StatusRequested && p.Status != StatusPendingReview {
		return p.TransitionTo(StatusCancelled)
	}
	if err := p.TransitionTo(StatusCancelled); err != nil {
		return err
	}
	p.markReviewed(adminID, notes)
	return nil
}

// StartProcessing transitions approved -> processing. An empty method
// keeps the method chosen at request time.
func (p *Payout) StartProcessing(method Method) error {
	if method != "" && !method.Valid() {
		return errors.NewValidationError("payment_method", "must be one of bank_transfer, paypal, stripe")
	}
	if p.Status != StatusApproved {
		return p.TransitionTo(StatusProcessing)
	}
	if err := p.TransitionTo(StatusProcessing); err != nil {
		return err
	}
	if method != "" {
		p.PaymentMethod = method
	}
	return nil
}

// Complete transitions processing -> completed and records the provider reference.
func (p *Payout) Complete(reference string, metadata map[string]any) error {
	if err := p.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	if reference != "" {
		p.PaymentReference = &reference
	}
	for k, v := range metadata {
		p.PaymentMetadata[k] = v
	}
	p.ReconciliationRequired = false
	return nil
}

// RecordSubmission stores the reference of a transfer the provider accepted
// while the payout is still processing.
func (p *Payout) RecordSubmission(reference string, metadata map[string]any) error {
	if p.Status != StatusProcessing {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot record a submission for a payout in "+string(p.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	if reference == "" {
		return errors.NewValidationError("payment_reference", "is required")
	}
	p.PaymentReference = &reference
	if p.PaymentMetadata == nil {
		p.PaymentMetadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		p.PaymentMetadata[k] = v
	}
	p.UpdatedAt = time.Now()
	return nil
}

// Submitted reports whether a processing payout already has an accepted
// transfer recorded.
func (p *Payout) Submitted() bool {
	return p.Status == StatusProcessing && p.PaymentReference != nil && *p.PaymentReference != ""
}

// Fail transitions processing -> failed and counts the failed attempt.
func (p *Payout) Fail(reason string) error {
	if err := p.TransitionTo(StatusFailed); err != nil {
		return err
	}
	p.FailureReason = &reason
	p.RetryCount++
	return nil
}

// Retry transitions failed -> processing. Once RetryCount reaches
// MaxRetries the payout stays failed for manual escalation.
func (p *Payout) Retry() error {
	if p.Status != StatusFailed {
		return p.TransitionTo(StatusProcessing)
	}
	if !p.CanRetry() {
		return errors.NewDomainError(
			"retry_limit_exceeded",
			fmt.Sprintf("payout failed %d times (limit %d)", p.RetryCount, p.MaxRetries),
			errors.ErrRetryLimitExceeded,
		)
	}
	if err := p.TransitionTo(StatusProcessing); err != nil {
		return err
	}
	p.FailureReason = nil
	p.FailedAt = nil
	p.PaymentReference = nil
	return nil
}

// Cancel gives up on a failed payout.
func (p *Payout) Cancel(adminID, reason string) error {
	if p.Status != StatusFailed {
		return p.TransitionTo(StatusCancelled)
	}
	if err := p.TransitionTo(StatusCancelled); err != nil {
		return err
	}
	p.markReviewed(adminID, reason)
	return nil
}

// FlagReconciliation marks a processing payout whose commissions could not
// all be settled. The status is left untouched.
func (p *Payout) FlagReconciliation(reason string) {
	p.ReconciliationRequired = true
	p.FailureReason = &reason
	p.UpdatedAt = time.Now()
}

// CanRetry checks if the payout can be retried
func (p *Payout) CanRetry() bool {
	return p.Status == StatusFailed && p.RetryCount < p.MaxRetries
}

// IsTerminal checks if the payout is in a terminal state
func (p *Payout) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusCancelled
}

// HoldsReservation reports whether the payout still claims its commissions.
func (p *Payout) HoldsReservation() bool {
	return !p.IsTerminal()
}

// AddNote appends admin notes; allowed in every status.
func (p *Payout) AddNote(note string) {
	if note == "" {
		return
	}
	if p.AdminNotes == nil || *p.AdminNotes == "" {
		p.AdminNotes = &note
	} else {
		joined := *p.AdminNotes + "\n" + note
		p.AdminNotes = &joined
	}
	p.UpdatedAt = time.Now()
}

func (p *Payout) markReviewed(adminID, notes string) {
	now := time.Now()
	p.ReviewedAt = &now
	if adminID != "" {
		p.ReviewedBy = &adminID
	}
	p.AddNote(notes)
}
