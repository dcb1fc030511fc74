package controller

import (
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/audit"
	"github.com/cassiomorais/marketplace/internal/domain/commission"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/money"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/cassiomorais/marketplace/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// Money travels as decimal strings ("45.10") and is converted to cents
// before it reaches the services.

// RegisterSellerRequest holds the input for seller registration.
type RegisterSellerRequest struct {
	BusinessName string  `json:"business_name" validate:"required,min=2,max=200"`
	Email        string  `json:"email" validate:"required,email"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	TaxID        *string `json:"tax_id,omitempty" validate:"omitempty,max=64"`
	PayoutMethod string  `json:"payout_method" validate:"required,oneof=bank_transfer paypal stripe"`
}

// ReasonRequest carries an optional free-text reason.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// SetCommissionRateRequest sets or, with a null rate, clears a seller override.
type SetCommissionRateRequest struct {
	Rate *decimal.Decimal `json:"rate"`
}

// LineItemRequest is one line of a completed order.
type LineItemRequest struct {
	LineItemID   string          `json:"line_item_id" validate:"required"`
	SellerID     string          `json:"seller_id" validate:"required,uuid"`
	ProductID    *string         `json:"product_id,omitempty"`
	ProductTitle string          `json:"product_title" validate:"max=500"`
	VariantID    *string         `json:"variant_id,omitempty"`
	Category     string          `json:"category"`
	Total        decimal.Decimal `json:"total"`
	Quantity     int             `json:"quantity" validate:"gte=1"`
}

// RecordOrderRequest records commissions for every line of an order.
type RecordOrderRequest struct {
	OrderID      string            `json:"order_id" validate:"required"`
	CurrencyCode string            `json:"currency_code" validate:"required,len=3"`
	Items        []LineItemRequest `json:"items" validate:"required,min=1,dive"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
}

// DisputeRequest opens a dispute on a commission.
type DisputeRequest struct {
	Notes string `json:"notes" validate:"required,max=1000"`
}

// ResolveDisputeRequest closes a dispute.
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=approved cancelled"`
	Notes   string `json:"notes" validate:"max=1000"`
}

// RequestPayoutRequest is a seller's payout request. An omitted amount
// requests the full total of the commissions.
type RequestPayoutRequest struct {
	CommissionIDs []string         `json:"commission_ids" validate:"required,min=1,dive,uuid"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	PaymentMethod string           `json:"payment_method" validate:"required,oneof=bank_transfer paypal stripe"`
}

// ReviewPayoutRequest records an admin decision.
type ReviewPayoutRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Notes    string `json:"notes" validate:"max=1000"`
}

// ProcessPayoutRequest starts processing, optionally switching method.
type ProcessPayoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=bank_transfer paypal stripe"`
}

// CompletePayoutRequest confirms a provider transfer.
type CompletePayoutRequest struct {
	PaymentReference string         `json:"payment_reference" validate:"required,max=255"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// FailPayoutRequest records a provider failure.
type FailPayoutRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// --- Response DTOs ---

// SellerResponse represents a seller in API responses.
type SellerResponse struct {
	ID                 string     `json:"id"`
	CustomerID         string     `json:"customer_id"`
	BusinessName       string     `json:"business_name"`
	Email              string     `json:"email"`
	Phone              *string    `json:"phone,omitempty"`
	TaxID              *string    `json:"tax_id,omitempty"`
	VerificationStatus string     `json:"verification_status"`
	IsActive           bool       `json:"is_active"`
	CommissionRate     *string    `json:"commission_rate,omitempty"`
	PayoutMethod       string     `json:"payout_method"`
	Rating             *float64   `json:"rating,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// RiskResponse is a seller risk assessment.
type RiskResponse struct {
	Score int      `json:"score"`
	Level string   `json:"level"`
	Flags []string `json:"flags"`
}

// CommissionResponse represents a commission in API responses.
type CommissionResponse struct {
	ID               string         `json:"id"`
	OrderID          string         `json:"order_id"`
	LineItemID       string         `json:"line_item_id"`
	SellerID         string         `json:"seller_id"`
	ProductID        *string        `json:"product_id,omitempty"`
	ProductTitle     string         `json:"product_title"`
	VariantID        *string        `json:"variant_id,omitempty"`
	LineItemTotal    string         `json:"line_item_total"`
	Quantity         int            `json:"quantity"`
	CommissionRate   string         `json:"commission_rate"`
	CommissionAmount string         `json:"commission_amount"`
	SellerPayout     string         `json:"seller_payout"`
	CurrencyCode     string         `json:"currency_code"`
	Status           string         `json:"status"`
	Notes            *string        `json:"notes,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`
	PaidAt           *time.Time     `json:"paid_at,omitempty"`
	DisputedAt       *time.Time     `json:"disputed_at,omitempty"`
	CancelledAt      *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// BulkResultResponse reports a per-order bulk operation.
type BulkResultResponse struct {
	Succeeded []string            `json:"succeeded"`
	Failed    []BulkFailureDetail `json:"failed"`
}

type BulkFailureDetail struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// StatusTotalsResponse is one status bucket of an earnings report.
type StatusTotalsResponse struct {
	Count            int    `json:"count"`
	LineItemTotal    string `json:"line_item_total"`
	CommissionAmount string `json:"commission_amount"`
	SellerPayout     string `json:"seller_payout"`
}

// EarningsResponse summarizes commissions.
type EarningsResponse struct {
	TotalSales         string                          `json:"total_sales"`
	TotalCommission    string                          `json:"total_commission"`
	TotalPayout        string                          `json:"total_payout"`
	PendingAmount      string                          `json:"pending_amount"`
	ApprovedAmount     string                          `json:"approved_amount"`
	PaidAmount         string                          `json:"paid_amount"`
	DisputedAmount     string                          `json:"disputed_amount"`
	AvailableForPayout *string                         `json:"available_for_payout,omitempty"`
	ByStatus           map[string]StatusTotalsResponse `json:"by_status"`
}

// SellerEarningsResponse is the store earnings view.
type SellerEarningsResponse struct {
	Earnings EarningsResponse      `json:"earnings"`
	Payouts  SellerSummaryResponse `json:"payouts"`
}

// PayoutResponse represents a payout in API responses.
type PayoutResponse struct {
	ID                     string         `json:"id"`
	SellerID               string         `json:"seller_id"`
	Amount                 string         `json:"amount"`
	CurrencyCode           string         `json:"currency_code"`
	CommissionIDs          []string       `json:"commission_ids"`
	Status                 string         `json:"status"`
	PaymentMethod          string         `json:"payment_method"`
	PaymentReference       *string        `json:"payment_reference,omitempty"`
	PaymentMetadata        map[string]any `json:"payment_metadata,omitempty"`
	RequestedAt            time.Time      `json:"requested_at"`
	ReviewedAt             *time.Time     `json:"reviewed_at,omitempty"`
	ApprovedAt             *time.Time     `json:"approved_at,omitempty"`
	ProcessingAt           *time.Time     `json:"processing_at,omitempty"`
	CompletedAt            *time.Time     `json:"completed_at,omitempty"`
	FailedAt               *time.Time     `json:"failed_at,omitempty"`
	CancelledAt            *time.Time     `json:"cancelled_at,omitempty"`
	ReviewedBy             *string        `json:"reviewed_by,omitempty"`
	AdminNotes             *string        `json:"admin_notes,omitempty"`
	FailureReason          *string        `json:"failure_reason,omitempty"`
	RetryCount             int            `json:"retry_count"`
	MaxRetries             int            `json:"max_retries"`
	ReconciliationRequired bool           `json:"reconciliation_required"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// PayoutStatsResponse is the admin payout dashboard.
type PayoutStatsResponse struct {
	PendingCount    int    `json:"pending_count"`
	PendingAmount   string `json:"pending_amount"`
	ApprovedCount   int    `json:"approved_count"`
	ApprovedAmount  string `json:"approved_amount"`
	ProcessingCount int    `json:"processing_count"`
	CompletedCount  int    `json:"completed_count"`
	CompletedAmount string `json:"completed_amount"`
	FailedCount     int    `json:"failed_count"`
	FailedAmount    string `json:"failed_amount"`
}

// SellerSummaryResponse summarizes one seller's payouts.
type SellerSummaryResponse struct {
	TotalRequested string `json:"total_requested"`
	TotalPaid      string `json:"total_paid"`
	TotalPending   string `json:"total_pending"`
	PayoutCount    int    `json:"payout_count"`
}

// AuditEventResponse represents an audit record.
type AuditEventResponse struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id"`
	ActorRole    string         `json:"actor_role"`
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	Action       string         `json:"action"`
	Before       map[string]any `json:"before,omitempty"`
	After        map[string]any `json:"after,omitempty"`
	Outcome      string         `json:"outcome"`
	Description  string         `json:"description,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ListResponse wraps one page of results.
type ListResponse[T any] struct {
	Data   []T `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ErrorResponse represents an error response. Reasons lists every
// violated rule when a request breaks several at once.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Field   string   `json:"field,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// --- Conversion helpers ---

func FromSeller(s *seller.Seller) *SellerResponse {
	resp := &SellerResponse{
		ID:                 s.ID.String(),
		CustomerID:         s.CustomerID,
		BusinessName:       s.BusinessName,
		Email:              s.Email,
		Phone:              s.Phone,
		TaxID:              s.TaxID,
		VerificationStatus: string(s.VerificationStatus),
		IsActive:           s.IsActive,
		PayoutMethod:       string(s.PayoutMethod),
		Rating:             s.Rating,
		Notes:              s.Notes,
		VerifiedAt:         s.VerifiedAt,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
	if s.CommissionRate != nil {
		rate := s.CommissionRate.StringFixed(2)
		resp.CommissionRate = &rate
	}
	return resp
}

func FromRisk(r rules.RiskAssessment) *RiskResponse {
	flags := r.Flags
	if flags == nil {
		flags = []string{}
	}
	return &RiskResponse{Score: r.Score, Level: string(r.Level), Flags: flags}
}

func FromCommission(c *commission.Commission) *CommissionResponse {
	return &CommissionResponse{
		ID:               c.ID.String(),
		OrderID:          c.OrderID,
		LineItemID:       c.LineItemID,
		SellerID:         c.SellerID.String(),
		ProductID:        c.ProductID,
		ProductTitle:     c.ProductTitle,
		VariantID:        c.VariantID,
		LineItemTotal:    money.Format(c.LineItemTotal),
		Quantity:         c.Quantity,
		CommissionRate:   c.CommissionRate.StringFixed(2),
		CommissionAmount: money.Format(c.CommissionAmount),
		SellerPayout:     money.Format(c.SellerPayout),
		CurrencyCode:     c.CurrencyCode,
		Status:           string(c.Status),
		Notes:            c.Notes,
		Metadata:         c.Metadata,
		ApprovedAt:       c.ApprovedAt,
		PaidAt:           c.PaidAt,
		DisputedAt:       c.DisputedAt,
		CancelledAt:      c.CancelledAt,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func FromBulkResult(r *service.BulkResult) *BulkResultResponse {
	resp := &BulkResultResponse{
		Succeeded: make([]string, 0, len(r.Succeeded)),
		Failed:    make([]BulkFailureDetail, 0, len(r.Failed)),
	}
	for _, id := range r.Succeeded {
		resp.Succeeded = append(resp.Succeeded, id.String())
	}
	for _, f := range r.Failed {
		resp.Failed = append(resp.Failed, BulkFailureDetail{ID: f.ID.String(), Error: f.Error})
	}
	return resp
}

func FromEarnings(e commission.Earnings) EarningsResponse {
	resp := EarningsResponse{
		TotalSales:      money.Format(e.TotalSales),
		TotalCommission: money.Format(e.TotalCommission),
		TotalPayout:     money.Format(e.TotalPayout),
		PendingAmount:   money.Format(e.PendingAmount),
		ApprovedAmount:  money.Format(e.ApprovedAmount),
		PaidAmount:      money.Format(e.PaidAmount),
		DisputedAmount:  money.Format(e.DisputedAmount),
		ByStatus:        make(map[string]StatusTotalsResponse, len(e.ByStatus)),
	}
	for status, t := range e.ByStatus {
		resp.ByStatus[string(status)] = StatusTotalsResponse{
			Count:            t.Count,
			LineItemTotal:    money.Format(t.LineItemTotal),
			CommissionAmount: money.Format(t.CommissionAmount),
			SellerPayout:     money.Format(t.SellerPayout),
		}
	}
	return resp
}

func FromPayout(p *payout.Payout) *PayoutResponse {
	ids := make([]string, 0, len(p.CommissionIDs))
	for _, id := range p.CommissionIDs {
		ids = append(ids, id.String())
	}
	return &PayoutResponse{
		ID:                     p.ID.String(),
		SellerID:               p.SellerID.String(),
		Amount:                 money.Format(p.Amount),
		CurrencyCode:           p.CurrencyCode,
		CommissionIDs:          ids,
		Status:                 string(p.Status),
		PaymentMethod:          string(p.PaymentMethod),
		PaymentReference:       p.PaymentReference,
		PaymentMetadata:        p.PaymentMetadata,
		RequestedAt:            p.RequestedAt,
		ReviewedAt:             p.ReviewedAt,
		ApprovedAt:             p.ApprovedAt,
		ProcessingAt:           p.ProcessingAt,
		CompletedAt:            p.CompletedAt,
		FailedAt:               p.FailedAt,
		CancelledAt:            p.CancelledAt,
		ReviewedBy:             p.ReviewedBy,
		AdminNotes:             p.AdminNotes,
		FailureReason:          p.FailureReason,
		RetryCount:             p.RetryCount,
		MaxRetries:             p.MaxRetries,
		ReconciliationRequired: p.ReconciliationRequired,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

func FromPayoutStats(s payout.Stats) *PayoutStatsResponse {
	return &PayoutStatsResponse{
		PendingCount:    s.PendingCount,
		PendingAmount:   money.Format(s.PendingAmount),
		ApprovedCount:   s.ApprovedCount,
		ApprovedAmount:  money.Format(s.ApprovedAmount),
		ProcessingCount: s.ProcessingCount,
		CompletedCount:  s.CompletedCount,
		CompletedAmount: money.Format(s.CompletedAmount),
		FailedCount:     s.FailedCount,
		FailedAmount:    money.Format(s.FailedAmount),
	}
}

func FromSellerSummary(s payout.SellerSummary) SellerSummaryResponse {
	return SellerSummaryResponse{
		TotalRequested: money.Format(s.TotalRequested),
		TotalPaid:      money.Format(s.TotalPaid),
		TotalPending:   money.Format(s.TotalPending),
		PayoutCount:    s.PayoutCount,
	}
}

func FromAuditEvent(e *audit.Event) *AuditEventResponse {
	return &AuditEventResponse{
		ID:           e.ID.String(),
		ActorID:      e.ActorID,
		ActorRole:    e.ActorRole,
		EntityType:   e.EntityType,
		EntityID:     e.EntityID,
		Action:       e.Action,
		Before:       e.Before,
		After:        e.After,
		Outcome:      string(e.Outcome),
		Description:  e.Description,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
	}
}

// mapSlice converts every item with fn.
func mapSlice[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}

// toCents converts a request amount, rejecting negatives and sub-cent precision.
func toCents(field string, d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, domainErrors.NewValidationError(field, "must not be negative")
	}
	cents, err := money.FromDecimal(d)
	if err != nil {
		return 0, domainErrors.NewValidationError(field, "must have at most 2 decimal places")
	}
	return cents, nil
}

func parseUUIDs(field string, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, domainErrors.NewValidationError(field, "invalid UUID "+s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
