package commission

import (
	"strings"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the commission status in the state machine
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusDisputed  Status = "disputed"
	StatusCancelled Status = "cancelled"
)

// Resolution is the outcome of a dispute.
type Resolution string

const (
	ResolveApproved  Resolution = "approved"
	ResolveCancelled Resolution = "cancelled"
)

var (
	minRate = decimal.Zero
	maxRate = decimal.NewFromInt(100)
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusDisputed, StatusCancelled},
	StatusApproved:  {StatusPaid, StatusDisputed, StatusCancelled},
	StatusDisputed:  {StatusApproved, StatusCancelled},
	StatusPaid:      {}, // Terminal state
	StatusCancelled: {}, // Terminal state
}

// Commission is the platform's share of a single order line item.
// CommissionAmount + SellerPayout always equals LineItemTotal.
type Commission struct {
	ID               uuid.UUID
	OrderID          string
	LineItemID       string
	SellerID         uuid.UUID
	ProductID        *string
	ProductTitle     string
	VariantID        *string
	LineItemTotal    int64 // in cents
	Quantity         int
	CommissionRate   decimal.Decimal
	CommissionAmount int64 // in cents
	SellerPayout     int64 // in cents
	CurrencyCode     string
	Status           Status
	Notes            *string
	Metadata         map[string]any
	ApprovedAt       *time.Time
	PaidAt           *time.Time
	DisputedAt       *time.Time
	CancelledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// NewParams holds the input for recording a commission.
type NewParams struct {
	OrderID       string
	LineItemID    string
	SellerID      uuid.UUID
	ProductID     *string
	ProductTitle  string
	VariantID     *string
	LineItemTotal int64
	Quantity      int
	Rate          decimal.Decimal
	CurrencyCode  string
	Metadata      map[string]any
}

// Calculate splits a line item total into the platform commission and the
// seller payout. The commission is rounded half-up to the cent and any
// rounding residual stays with the seller.
func Calculate(lineItemTotal int64, rate decimal.Decimal) (commissionAmount, sellerPayout int64, err error) {
	if rate.LessThan(minRate) || rate.GreaterThan(maxRate) {
		return 0, 0, errors.ErrInvalidRate
	}
	if lineItemTotal < 0 {
		return 0, 0, errors.ErrInvalidAmount
	}
	commissionAmount = money.Percentage(lineItemTotal, rate)
	return commissionAmount, lineItemTotal - commissionAmount, nil
}

// New validates params and returns a pending commission.
func New(p NewParams) (*Commission, error) {
	if strings.TrimSpace(p.OrderID) == "" {
		return nil, errors.NewValidationError("order_id", "cannot be empty")
	}
	if strings.TrimSpace(p.LineItemID) == "" {
		return nil, errors.NewValidationError("line_item_id", "cannot be empty")
	}
	if p.SellerID == uuid.Nil {
		return nil, errors.NewValidationError("seller_id", "cannot be empty")
	}
	if p.Quantity < 1 {
		return nil, errors.NewValidationError("quantity", "must be at least 1")
	}
	currency := money.NormalizeCurrency(p.CurrencyCode)
	if !money.ValidCurrency(currency) {
		return nil, errors.ErrInvalidCurrency
	}

	commissionAmount, sellerPayout, err := Calculate(p.LineItemTotal, p.Rate)
	if err != nil {
		return nil, err
	}

	metadata := p.Metadata
	if metadata == nil {
		metadata = make(map[string]any)
	}

	now := time.Now()
	return &Commission{
		ID:               uuid.New(),
		OrderID:          p.OrderID,
		LineItemID:       p.LineItemID,
		SellerID:         p.SellerID,
		ProductID:        p.ProductID,
		ProductTitle:     p.ProductTitle,
		VariantID:        p.VariantID,
		LineItemTotal:    p.LineItemTotal,
		Quantity:         p.Quantity,
		CommissionRate:   p.Rate,
		CommissionAmount: commissionAmount,
		SellerPayout:     sellerPayout,
		CurrencyCode:     currency,
		Status:           StatusPending,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// CanTransitionTo checks if the commission can transition to the given status
func (c *Commission) CanTransitionTo(newStatus Status) bool {
	for _, allowed := range transitions[c.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the commission to newStatus and stamps the matching
// timestamp the first time that status is entered.
func (c *Commission) TransitionTo(newStatus Status) error {
	if !c.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition commission from "+string(c.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	now := time.Now()
	c.Status = newStatus
	c.UpdatedAt = now

	switch newStatus {
	case StatusApproved:
		stampOnce(&c.ApprovedAt, now)
	case StatusPaid:
		stampOnce(&c.PaidAt, now)
	case StatusDisputed:
		stampOnce(&c.DisputedAt, now)
	case StatusCancelled:
		stampOnce(&c.CancelledAt, now)
	}
	return nil
}

// Approve transitions pending -> approved.
func (c *Commission) Approve() error {
	if c.Status != StatusPending {
		return c.invalid(StatusApproved)
	}
	return c.TransitionTo(StatusApproved)
}

// MarkPaid transitions approved -> paid.
func (c *Commission) MarkPaid() error {
	return c.TransitionTo(StatusPaid)
}

// Dispute transitions pending or approved -> disputed and records notes.
func (c *Commission) Dispute(notes string) error {
	if err := c.TransitionTo(StatusDisputed); err != nil {
		return err
	}
	c.appendNote("dispute: " + notes)
	return nil
}

// Cancel moves any non-terminal commission to cancelled. Cancelling an
// already cancelled commission is a no-op and reports changed=false.
func (c *Commission) Cancel(reason string) (changed bool, err error) {
	if c.Status == StatusCancelled {
		return false, nil
	}
	if err := c.TransitionTo(StatusCancelled); err != nil {
		return false, err
	}
	if reason != "" {
		c.appendNote("cancelled: " + reason)
	}
	return true, nil
}

// ResolveDispute transitions disputed -> approved or cancelled.
func (c *Commission) ResolveDispute(outcome Resolution, notes string) error {
	if c.Status != StatusDisputed {
		return c.invalid(Status(outcome))
	}
	switch outcome {
	case ResolveApproved:
		if err := c.TransitionTo(StatusApproved); err != nil {
			return err
		}
	case ResolveCancelled:
		if err := c.TransitionTo(StatusCancelled); err != nil {
			return err
		}
	default:
		return errors.NewValidationError("outcome", "must be approved or cancelled")
	}
	if notes != "" {
		c.appendNote("resolution: " + notes)
	}
	return nil
}

// IsTerminal checks if the commission is in a terminal state
func (c *Commission) IsTerminal() bool {
	return c.Status == StatusPaid || c.Status == StatusCancelled
}

func (c *Commission) invalid(target Status) error {
	return errors.NewDomainError(
		"invalid_transition",
		"cannot transition commission from "+string(c.Status)+" to "+string(target),
		errors.ErrInvalidStateTransition,
	)
}

func (c *Commission) appendNote(note string) {
	if c.Notes == nil || *c.Notes == "" {
		c.Notes = &note
		return
	}
	joined := *c.Notes + "\n" + note
	c.Notes = &joined
}

func stampOnce(field **time.Time, now time.Time) {
	if *field == nil {
		t := now
		*field = &t
	}
}
