package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/audit"
	"github.com/cassiomorais/marketplace/internal/domain/commission"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/cassiomorais/marketplace/internal/infrastructure/observability"
	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReservationIndex answers which commissions are held by open payouts.
type ReservationIndex interface {
	FindReservations(ctx context.Context, commissionIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	ReservedCommissionIDs(ctx context.Context, sellerID uuid.UUID) ([]uuid.UUID, error)
}

// CommissionService is the commission ledger. It is the only writer of
// commission records.
type CommissionService struct {
	repo         commission.Repository
	sellers      seller.Reader
	reservations ReservationIndex
	evaluator    *rules.Evaluator
	txManager    TransactionManager
	audit        *AuditTrail
	metrics      *observability.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

func NewCommissionService(
	repo commission.Repository,
	sellers seller.Reader,
	reservations ReservationIndex,
	evaluator *rules.Evaluator,
	txManager TransactionManager,
	auditTrail *AuditTrail,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CommissionService {
	return &CommissionService{
		repo:         repo,
		sellers:      sellers,
		reservations: reservations,
		evaluator:    evaluator,
		txManager:    txManager,
		audit:        auditTrail,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// RecordCommissionRequest holds the input for recording one line item.
type RecordCommissionRequest struct {
	OrderID       string
	LineItemID    string
	SellerID      uuid.UUID
	ProductID     *string
	ProductTitle  string
	VariantID     *string
	Category      string
	LineItemTotal int64 // in cents
	Quantity      int
	// Rate overrides rule resolution when set.
	Rate         *decimal.Decimal
	CurrencyCode string
	Metadata     map[string]any
}

// OrderLineItem is one line of a completed order.
type OrderLineItem struct {
	LineItemID   string
	SellerID     uuid.UUID
	ProductID    *string
	ProductTitle string
	VariantID    *string
	Category     string
	Total        int64 // in cents
	Quantity     int
}

// RecordOrderRequest holds a completed order.
type RecordOrderRequest struct {
	OrderID      string
	CurrencyCode string
	Items        []OrderLineItem
	Metadata     map[string]any
}

// BulkFailure is one commission a bulk operation could not change.
type BulkFailure struct {
	ID    uuid.UUID
	Error string
}

// BulkResult reports the outcome of a per-order bulk operation.
type BulkResult struct {
	Succeeded []uuid.UUID
	Failed    []BulkFailure
}

// Record creates a pending commission for one line item.
func (s *CommissionService) Record(ctx context.Context, req RecordCommissionRequest) (*commission.Commission, error) {
	rate, err := s.resolveRate(ctx, req.SellerID, req.Category, req.Rate, nil)
	if err != nil {
		return nil, err
	}

	c, err := commission.New(commission.NewParams{
		OrderID:       req.OrderID,
		LineItemID:    req.LineItemID,
		SellerID:      req.SellerID,
		ProductID:     req.ProductID,
		ProductTitle:  req.ProductTitle,
		VariantID:     req.VariantID,
		LineItemTotal: req.LineItemTotal,
		Quantity:      req.Quantity,
		Rate:          rate,
		CurrencyCode:  req.CurrencyCode,
		Metadata:      req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.recorded(ctx, c)
	return c, nil
}

// RecordOrder records one commission per line item of an order in a single
// transaction. Either every line item is recorded or none is.
func (s *CommissionService) RecordOrder(ctx context.Context, req RecordOrderRequest) ([]*commission.Commission, error) {
	if len(req.Items) == 0 {
		return nil, domainErrors.NewValidationError("items", "order has no line items")
	}

	sellers := make(map[uuid.UUID]*seller.Seller)
	created := make([]*commission.Commission, 0, len(req.Items))

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		created = created[:0]
		for _, item := range req.Items {
			rate, err := s.resolveRate(txCtx, item.SellerID, item.Category, nil, sellers)
			if err != nil {
				return fmt.Errorf("line item %s: %w", item.LineItemID, err)
			}
			c, err := commission.New(commission.NewParams{
				OrderID:       req.OrderID,
				LineItemID:    item.LineItemID,
				SellerID:      item.SellerID,
				ProductID:     item.ProductID,
				ProductTitle:  item.ProductTitle,
				VariantID:     item.VariantID,
				LineItemTotal: item.Total,
				Quantity:      item.Quantity,
				Rate:          rate,
				CurrencyCode:  req.CurrencyCode,
				Metadata:      req.Metadata,
			})
			if err != nil {
				return fmt.Errorf("line item %s: %w", item.LineItemID, err)
			}
			if err := s.repo.Create(txCtx, c); err != nil {
				return err
			}
			created = append(created, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, c := range created {
		s.recorded(ctx, c)
	}
	s.logger.Info().
		Str("order_id", req.OrderID).
		Int("commissions", len(created)).
		Msg("order commissions recorded")
	return created, nil
}

// Approve moves a pending commission to approved.
func (s *CommissionService) Approve(ctx context.Context, id uuid.UUID) (*commission.Commission, error) {
	return s.transition(ctx, id, "approve", func(_ context.Context, c *commission.Commission) (bool, error) {
		return true, c.Approve()
	})
}

// MarkPaid moves an approved commission to paid.
func (s *CommissionService) MarkPaid(ctx context.Context, id uuid.UUID) (*commission.Commission, error) {
	return s.transition(ctx, id, "mark_paid", func(_ context.Context, c *commission.Commission) (bool, error) {
		return true, c.MarkPaid()
	})
}

// Dispute flags a pending or approved commission. Commissions held by an
// open payout cannot be disputed. The reservation is checked under the
// commission's row lock, which a payout request also takes before
// reserving.
func (s *CommissionService) Dispute(ctx context.Context, id uuid.UUID, notes string) (*commission.Commission, error) {
	return s.transition(ctx, id, "dispute", func(txCtx context.Context, c *commission.Commission) (bool, error) {
		if err := s.ensureNotReserved(txCtx, c.ID); err != nil {
			return false, err
		}
		return true, c.Dispute(notes)
	})
}

// Cancel cancels a non-terminal commission. Cancelling a cancelled
// commission returns it unchanged. Reserved commissions cannot be cancelled.
func (s *CommissionService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*commission.Commission, error) {
	return s.transition(ctx, id, "cancel", func(txCtx context.Context, c *commission.Commission) (bool, error) {
		if err := s.ensureNotReserved(txCtx, c.ID); err != nil {
			return false, err
		}
		return c.Cancel(reason)
	})
}

// ResolveDispute settles a disputed commission as approved or cancelled.
func (s *CommissionService) ResolveDispute(ctx context.Context, id uuid.UUID, outcome commission.Resolution, notes string) (*commission.Commission, error) {
	return s.transition(ctx, id, "resolve_dispute", func(_ context.Context, c *commission.Commission) (bool, error) {
		return true, c.ResolveDispute(outcome, notes)
	})
}

func (s *CommissionService) Get(ctx context.Context, id uuid.UUID) (*commission.Commission, error) {
	return s.repo.GetByID(ctx, id)
}

// GetManyForUpdate returns the existing commissions among ids with their
// rows locked until the caller's transaction ends. Called outside a
// transaction the locks are released immediately.
func (s *CommissionService) GetManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]*commission.Commission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.repo.GetManyForUpdate(ctx, ids)
}

// List returns one page of commissions and the total matching the filter.
func (s *CommissionService) List(ctx context.Context, filter commission.ListFilter) ([]*commission.Commission, int, error) {
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

// SellerEarnings sums a seller's commissions by status.
func (s *CommissionService) SellerEarnings(ctx context.Context, sellerID uuid.UUID) (commission.Earnings, error) {
	totals, err := s.repo.Totals(ctx, &sellerID)
	if err != nil {
		return commission.Earnings{}, err
	}
	return commission.Summarize(totals), nil
}

// PlatformEarnings sums every commission on the platform by status.
func (s *CommissionService) PlatformEarnings(ctx context.Context) (commission.Earnings, error) {
	totals, err := s.repo.Totals(ctx, nil)
	if err != nil {
		return commission.Earnings{}, err
	}
	return commission.Summarize(totals), nil
}

// AvailableForPayout is the seller payout of approved commissions not yet
// reserved by an open payout.
func (s *CommissionService) AvailableForPayout(ctx context.Context, sellerID uuid.UUID) (int64, error) {
	earnings, err := s.SellerEarnings(ctx, sellerID)
	if err != nil {
		return 0, err
	}
	available := earnings.ApprovedAmount

	reserved, err := s.reservations.ReservedCommissionIDs(ctx, sellerID)
	if err != nil {
		return 0, err
	}
	if len(reserved) == 0 {
		return available, nil
	}
	held, err := s.repo.GetByIDs(ctx, reserved)
	if err != nil {
		return 0, err
	}
	for _, c := range held {
		if c.Status == commission.StatusApproved {
			available -= c.SellerPayout
		}
	}
	return max(available, 0), nil
}

// ApproveForOrder approves every pending commission of an order. Failures
// do not stop the batch.
func (s *CommissionService) ApproveForOrder(ctx context.Context, orderID string) (*BulkResult, error) {
	return s.bulk(ctx, orderID,
		func(c *commission.Commission) bool { return c.Status == commission.StatusPending },
		func(id uuid.UUID) error {
			_, err := s.Approve(ctx, id)
			return err
		})
}

// CancelForOrder cancels every commission of an order that is not already
// cancelled. Failures do not stop the batch.
func (s *CommissionService) CancelForOrder(ctx context.Context, orderID, reason string) (*BulkResult, error) {
	return s.bulk(ctx, orderID,
		func(c *commission.Commission) bool { return c.Status != commission.StatusCancelled },
		func(id uuid.UUID) error {
			_, err := s.Cancel(ctx, id, reason)
			return err
		})
}

// AutoApproveMatured approves pending commissions older than age and returns
// how many were approved.
func (s *CommissionService) AutoApproveMatured(ctx context.Context, age time.Duration, batchSize int) (int, error) {
	cutoff := s.now().Add(-age)
	pending, err := s.repo.ListPendingBefore(ctx, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	approved := 0
	for _, c := range pending {
		if _, err := s.Approve(ctx, c.ID); err != nil {
			s.logger.Warn().Err(err).Str("commission_id", c.ID.String()).Msg("auto-approve failed")
			continue
		}
		approved++
	}
	return approved, nil
}

func (s *CommissionService) bulk(ctx context.Context, orderID string, selectFn func(*commission.Commission) bool, apply func(uuid.UUID) error) (*BulkResult, error) {
	items, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, domainErrors.ErrCommissionNotFound)
	}

	result := &BulkResult{Succeeded: []uuid.UUID{}, Failed: []BulkFailure{}}
	for _, c := range items {
		if !selectFn(c) {
			continue
		}
		if err := apply(c.ID); err != nil {
			result.Failed = append(result.Failed, BulkFailure{ID: c.ID, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, c.ID)
	}
	return result, nil
}

// transition loads a commission under a row lock, applies fn and persists
// the result. fn reports whether it changed anything. Inside an enclosing
// transaction the success audit waits for that transaction to commit.
func (s *CommissionService) transition(ctx context.Context, id uuid.UUID, action string, fn func(context.Context, *commission.Commission) (bool, error)) (*commission.Commission, error) {
	var (
		result *commission.Commission
		before map[string]any
	)
	err := inTransaction(ctx, s.txManager, func(txCtx context.Context) error {
		c, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		before = audit.Snapshot(c)

		changed, err := fn(txCtx, c)
		if err != nil {
			return err
		}
		result = c
		if !changed {
			return nil
		}
		return s.repo.Update(txCtx, c)
	})

	event := &audit.Event{
		EntityType: audit.EntityCommission,
		EntityID:   id.String(),
		Action:     action,
		Before:     before,
	}
	if err != nil {
		s.audit.Failure(ctx, event, err)
		return nil, err
	}

	event.SellerID = &result.SellerID
	event.After = audit.Snapshot(result)
	event.Description = fmt.Sprintf("commission %s is %s", result.ID, result.Status)
	afterCommit(ctx, func() {
		s.audit.Record(ctx, event)
		s.metrics.CommissionRecorded(action)
	})
	return result, nil
}

func (s *CommissionService) ensureNotReserved(ctx context.Context, id uuid.UUID) error {
	held, err := s.reservations.FindReservations(ctx, []uuid.UUID{id})
	if err != nil {
		return err
	}
	if payoutID, ok := held[id]; ok {
		return domainErrors.NewDomainError(
			"commission_reserved",
			fmt.Sprintf("commission %s is held by payout %s", id, payoutID),
			domainErrors.ErrCommissionReserved,
		)
	}
	return nil
}

// resolveRate returns the explicit rate or resolves it from the seller and
// category. cache may be nil.
func (s *CommissionService) resolveRate(ctx context.Context, sellerID uuid.UUID, category string, explicit *decimal.Decimal, cache map[uuid.UUID]*seller.Seller) (decimal.Decimal, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if sellerID == uuid.Nil {
		return decimal.Zero, domainErrors.NewValidationError("seller_id", "cannot be empty")
	}

	sel, ok := cache[sellerID]
	if !ok {
		var err error
		sel, err = s.sellers.GetByID(ctx, sellerID)
		if err != nil {
			return decimal.Zero, err
		}
		if cache != nil {
			cache[sellerID] = sel
		}
	}
	return s.evaluator.ResolveCommissionRate(sel, category), nil
}

func (s *CommissionService) recorded(ctx context.Context, c *commission.Commission) {
	s.audit.Record(ctx, &audit.Event{
		SellerID:    &c.SellerID,
		EntityType:  audit.EntityCommission,
		EntityID:    c.ID.String(),
		Action:      "record",
		After:       audit.Snapshot(c),
		Description: fmt.Sprintf("commission recorded for order %s line item %s", c.OrderID, c.LineItemID),
	})
	s.metrics.CommissionRecorded("record")
	s.metrics.CommissionAmount(c.CurrencyCode, c.CommissionAmount)
}
