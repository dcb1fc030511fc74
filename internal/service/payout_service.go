package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/audit"
	"github.com/cassiomorais/marketplace/internal/domain/commission"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/money"
	"github.com/cassiomorais/marketplace/internal/domain/outbox"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/cassiomorais/marketplace/internal/infrastructure/observability"
	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CommissionLedger is the part of the ledger the orchestrator depends on.
type CommissionLedger interface {
	GetManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]*commission.Commission, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (*commission.Commission, error)
}

// PayoutPolicy configures the orchestrator.
type PayoutPolicy struct {
	MaxRetries int
	// ExactAmount requires the requested amount to equal the commission total.
	ExactAmount  bool
	RequestLimit rules.Limit
}

// DefaultPayoutPolicy returns the stock orchestrator policy.
func DefaultPayoutPolicy() PayoutPolicy {
	return PayoutPolicy{
		MaxRetries:   payout.DefaultMaxRetries,
		RequestLimit: rules.Limit{Max: 5, Window: time.Hour},
	}
}

// ReviewDecision is an admin verdict on a payout request.
type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
)

// PayoutService is the payout orchestrator. It is the only writer of
// payouts and changes commissions only through the ledger.
type PayoutService struct {
	repo      payout.Repository
	ledger    CommissionLedger
	sellers   seller.Reader
	outbox    outbox.Repository
	evaluator *rules.Evaluator
	limiter   RateLimiter
	locker    Locker
	txManager TransactionManager
	audit     *AuditTrail
	metrics   *observability.Metrics
	logger    zerolog.Logger
	policy    PayoutPolicy
	now       func() time.Time
}

func NewPayoutService(
	repo payout.Repository,
	ledger CommissionLedger,
	sellers seller.Reader,
	outboxRepo outbox.Repository,
	evaluator *rules.Evaluator,
	limiter RateLimiter,
	locker Locker,
	txManager TransactionManager,
	auditTrail *AuditTrail,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	policy PayoutPolicy,
) *PayoutService {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = payout.DefaultMaxRetries
	}
	return &PayoutService{
		repo:      repo,
		ledger:    ledger,
		sellers:   sellers,
		outbox:    outboxRepo,
		evaluator: evaluator,
		limiter:   limiter,
		locker:    locker,
		txManager: txManager,
		audit:     auditTrail,
		metrics:   metrics,
		logger:    logger,
		policy:    policy,
		now:       time.Now,
	}
}

// RequestPayoutRequest holds the input for a seller payout request.
type RequestPayoutRequest struct {
	SellerID      uuid.UUID
	CommissionIDs []uuid.UUID
	// Amount in cents; zero requests the full commission total.
	Amount        int64
	PaymentMethod payout.Method
}

// RequestPayout validates a seller's payout request against the rules and
// the ledger and creates the payout with its commissions reserved. Nothing
// is written when validation fails.
func (s *PayoutService) RequestPayout(ctx context.Context, req RequestPayoutRequest) (*payout.Payout, error) {
	decision, err := s.limiter.Allow(ctx, "payout_request:"+req.SellerID.String(), s.policy.RequestLimit)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, domainErrors.NewDomainError(
			"rate_limited",
			fmt.Sprintf("too many payout requests, retry after %s", decision.ResetAt.Format(time.RFC3339)),
			domainErrors.ErrRateLimited,
		)
	}

	unlock, err := s.locker.Lock(ctx, sellerLockKey(req.SellerID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Commission rows stay locked from validation until the reservation is
	// written, so a concurrent dispute or cancel cannot slip in between.
	var p *payout.Payout
	if err := inTransaction(ctx, s.txManager, func(txCtx context.Context) error {
		sel, err := s.sellers.GetByID(txCtx, req.SellerID)
		if err != nil {
			return err
		}

		commissions, err := s.validateCommissionSet(txCtx, req.SellerID, req.CommissionIDs)
		if err != nil {
			return err
		}

		history, err := s.repo.History(txCtx, req.SellerID)
		if err != nil {
			return err
		}
		eligibility := s.evaluator.CheckPayoutEligibility(sel, history.LastRequestedAt, history.FailedCount, s.now())
		if !eligibility.Eligible {
			return s.violation("ineligible_seller", domainErrors.ErrIneligibleSeller, eligibility.Reasons...)
		}

		var total int64
		for _, c := range commissions {
			total += c.SellerPayout
		}
		amount := req.Amount
		if amount == 0 {
			amount = total
		}
		if reasons := s.checkAmount(amount, total); len(reasons) > 0 {
			return s.violation("amount_out_of_range", domainErrors.ErrAmountOutOfRange, reasons...)
		}

		method := req.PaymentMethod
		if method == "" {
			method = sel.PayoutMethod
		}
		p, err = payout.New(req.SellerID, amount, commissions[0].CurrencyCode, req.CommissionIDs, method, s.policy.MaxRetries)
		if err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, p); err != nil {
			if errors.Is(err, domainErrors.ErrCommissionReserved) {
				s.metrics.ReservationConflict()
			}
			return err
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &audit.Event{
		SellerID:    &p.SellerID,
		EntityType:  audit.EntityPayout,
		EntityID:    p.ID.String(),
		Action:      "request",
		After:       audit.Snapshot(p),
		Description: fmt.Sprintf("payout of %s %s requested for %d commissions", money.Format(p.Amount), p.CurrencyCode, len(p.CommissionIDs)),
	})
	s.metrics.PayoutRequested(string(p.PaymentMethod), p.Amount)
	s.logger.Info().
		Str("payout_id", p.ID.String()).
		Str("seller_id", p.SellerID.String()).
		Int64("amount_cents", p.Amount).
		Msg("payout requested")
	return p, nil
}

// Review records an admin decision. Approve advances requested to
// pending_review and pending_review to approved. Reject cancels the request
// and frees its commissions.
func (s *PayoutService) Review(ctx context.Context, id uuid.UUID, adminID string, decision ReviewDecision, notes string) (*payout.Payout, error) {
	switch decision {
	case ReviewApprove:
		return s.mutate(ctx, id, "review_approve", func(_ context.Context, p *payout.Payout) error {
			return p.ApproveReview(adminID, notes)
		})
	case ReviewReject:
		return s.mutate(ctx, id, "review_reject", func(_ context.Context, p *payout.Payout) error {
			return p.Reject(adminID, notes)
		})
	default:
		return nil, domainErrors.NewValidationError("decision", "must be approve or reject")
	}
}

// StartProcessing moves an approved payout to processing and queues its
// submission to the payment provider.
func (s *PayoutService) StartProcessing(ctx context.Context, id uuid.UUID, method payout.Method) (*payout.Payout, error) {
	return s.mutate(ctx, id, "start_processing", func(txCtx context.Context, p *payout.Payout) error {
		if err := p.StartProcessing(method); err != nil {
			return err
		}
		return s.outbox.Insert(txCtx, outbox.NewPayoutSettlement(
			p.ID, outbox.EventPayoutProcessing, string(p.PaymentMethod), p.Amount, p.CurrencyCode, p.RetryCount+1,
		))
	})
}

// Complete marks every referenced commission paid and the payout completed
// in one transaction. If a commission cannot be marked paid the whole
// transaction rolls back, the payout is flagged for reconciliation and
// ErrReconciliationRequired is returned. Other failures are returned as is.
func (s *PayoutService) Complete(ctx context.Context, id uuid.UUID, reference string, metadata map[string]any) (*payout.Payout, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, sellerLockKey(current.SellerID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := current.CheckTransition(payout.StatusCompleted); err != nil {
		return nil, err
	}
	before := audit.Snapshot(current)

	var (
		completed *payout.Payout
		settleErr error
	)
	err = inTransaction(ctx, s.txManager, func(txCtx context.Context) error {
		settleErr = nil
		p, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := p.CheckTransition(payout.StatusCompleted); err != nil {
			return err
		}
		if err := s.settleCommissions(txCtx, p); err != nil {
			settleErr = err
			return err
		}
		if err := p.Complete(reference, metadata); err != nil {
			return err
		}
		if err := s.repo.Update(txCtx, p); err != nil {
			return err
		}
		completed = p
		return nil
	})
	switch {
	case settleErr != nil:
		return nil, s.flagReconciliation(ctx, id, before, settleErr)
	case err != nil:
		return nil, err
	}

	s.audit.Record(ctx, &audit.Event{
		SellerID:    &completed.SellerID,
		EntityType:  audit.EntityPayout,
		EntityID:    completed.ID.String(),
		Action:      "complete",
		Before:      before,
		After:       audit.Snapshot(completed),
		Description: fmt.Sprintf("payout completed with reference %s", reference),
	})
	s.metrics.PayoutTransition(string(payout.StatusCompleted))
	return completed, nil
}

// Fail records a provider failure and counts it against the retry budget.
func (s *PayoutService) Fail(ctx context.Context, id uuid.UUID, reason string) (*payout.Payout, error) {
	return s.mutate(ctx, id, "fail", func(_ context.Context, p *payout.Payout) error {
		return p.Fail(reason)
	})
}

// RecordSubmission stores the provider reference of an accepted transfer on
// a processing payout before it is completed. A settlement that is
// redelivered after this point completes the payout without submitting the
// transfer again.
func (s *PayoutService) RecordSubmission(ctx context.Context, id uuid.UUID, reference string, metadata map[string]any) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		p, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := p.RecordSubmission(reference, metadata); err != nil {
			return err
		}
		return s.repo.Update(txCtx, p)
	})
}

// Retry sends a failed payout back to processing and queues a new
// submission. Once the retry budget is spent the payout stays failed.
func (s *PayoutService) Retry(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return s.mutate(ctx, id, "retry", func(txCtx context.Context, p *payout.Payout) error {
		if err := p.Retry(); err != nil {
			return err
		}
		return s.outbox.Insert(txCtx, outbox.NewPayoutSettlement(
			p.ID, outbox.EventPayoutRetried, string(p.PaymentMethod), p.Amount, p.CurrencyCode, p.RetryCount+1,
		))
	})
}

// Cancel gives up on a failed payout and frees its commissions.
func (s *PayoutService) Cancel(ctx context.Context, id uuid.UUID, adminID, reason string) (*payout.Payout, error) {
	return s.mutate(ctx, id, "cancel", func(_ context.Context, p *payout.Payout) error {
		return p.Cancel(adminID, reason)
	})
}

func (s *PayoutService) Get(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns one page of payouts and the total matching the filter.
func (s *PayoutService) List(ctx context.Context, filter payout.ListFilter) ([]*payout.Payout, int, error) {
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

// Stats summarizes every payout by status.
func (s *PayoutService) Stats(ctx context.Context) (payout.Stats, error) {
	totals, err := s.repo.Totals(ctx, nil)
	if err != nil {
		return payout.Stats{}, err
	}
	return payout.SummarizeStats(totals), nil
}

// SellerSummary summarizes one seller's payouts.
func (s *PayoutService) SellerSummary(ctx context.Context, sellerID uuid.UUID) (payout.SellerSummary, error) {
	totals, err := s.repo.Totals(ctx, &sellerID)
	if err != nil {
		return payout.SellerSummary{}, err
	}
	return payout.SummarizeSeller(totals), nil
}

// SweepTimedOut fails payouts that have been processing for longer than
// timeout. Payouts awaiting reconciliation and payouts the provider has
// already accepted are left alone.
func (s *PayoutService) SweepTimedOut(ctx context.Context, timeout time.Duration, batchSize int) (int, error) {
	stuck, err := s.repo.ListProcessingBefore(ctx, s.now().Add(-timeout), batchSize)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, p := range stuck {
		if p.ReconciliationRequired || p.Submitted() {
			continue
		}
		if _, err := s.Fail(ctx, p.ID, "provider timeout"); err != nil {
			s.logger.Warn().Err(err).Str("payout_id", p.ID.String()).Msg("timeout sweep could not fail payout")
			continue
		}
		failed++
	}
	return failed, nil
}

// mutate applies fn to a payout under the seller lock and a row lock,
// persists it and records the audit event.
func (s *PayoutService) mutate(ctx context.Context, id uuid.UUID, action string, fn func(ctx context.Context, p *payout.Payout) error) (*payout.Payout, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, sellerLockKey(current.SellerID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		result *payout.Payout
		before map[string]any
	)
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		p, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		before = audit.Snapshot(p)
		if err := fn(txCtx, p); err != nil {
			return err
		}
		if err := s.repo.Update(txCtx, p); err != nil {
			return err
		}
		result = p
		return nil
	})

	event := &audit.Event{
		SellerID:   &current.SellerID,
		EntityType: audit.EntityPayout,
		EntityID:   id.String(),
		Action:     action,
		Before:     before,
	}
	if err != nil {
		s.audit.Failure(ctx, event, err)
		return nil, err
	}

	event.After = audit.Snapshot(result)
	event.Description = fmt.Sprintf("payout %s is %s", result.ID, result.Status)
	s.audit.Record(ctx, event)
	s.metrics.PayoutTransition(string(result.Status))
	s.logger.Info().
		Str("payout_id", result.ID.String()).
		Str("action", action).
		Str("status", string(result.Status)).
		Msg("payout updated")
	return result, nil
}

// validateCommissionSet checks that ids name distinct approved commissions
// of the seller in one currency that no open payout holds.
func (s *PayoutService) validateCommissionSet(ctx context.Context, sellerID uuid.UUID, ids []uuid.UUID) ([]*commission.Commission, error) {
	if len(ids) == 0 {
		return nil, s.violation("invalid_commission_set", domainErrors.ErrInvalidCommissionSet, "at least one commission is required")
	}

	var reasons []string
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			reasons = append(reasons, fmt.Sprintf("commission %s is listed more than once", id))
		}
		seen[id] = true
	}

	found, err := s.ledger.GetManyForUpdate(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*commission.Commission, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	var (
		ordered  []*commission.Commission
		currency string
	)
	for _, id := range uniqueIDs(ids) {
		c, ok := byID[id]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("commission %s not found", id))
			continue
		}
		if c.SellerID != sellerID {
			reasons = append(reasons, fmt.Sprintf("commission %s does not belong to seller", id))
			continue
		}
		if c.Status != commission.StatusApproved {
			reasons = append(reasons, fmt.Sprintf("commission %s is %s, not approved", id, c.Status))
			continue
		}
		if currency == "" {
			currency = c.CurrencyCode
		} else if c.CurrencyCode != currency {
			reasons = append(reasons, fmt.Sprintf("commission %s is in %s, expected %s", id, c.CurrencyCode, currency))
			continue
		}
		ordered = append(ordered, c)
	}
	if len(reasons) > 0 {
		return nil, s.violation("invalid_commission_set", domainErrors.ErrInvalidCommissionSet, reasons...)
	}

	held, err := s.repo.FindReservations(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(held) > 0 {
		for _, id := range uniqueIDs(ids) {
			if payoutID, ok := held[id]; ok {
				reasons = append(reasons, fmt.Sprintf("commission %s is reserved by payout %s", id, payoutID))
			}
		}
		s.metrics.ReservationConflict()
		return nil, s.violation("commission_reserved", domainErrors.ErrCommissionReserved, reasons...)
	}
	return ordered, nil
}

func (s *PayoutService) checkAmount(amount, total int64) []string {
	var reasons []string
	if reason, ok := s.evaluator.CheckRequestThreshold(total); !ok {
		reasons = append(reasons, reason)
	}
	if check := s.evaluator.CheckAmountRange(amount); !check.Valid {
		reasons = append(reasons, check.Reason)
	}
	switch {
	case amount > total:
		reasons = append(reasons, fmt.Sprintf("amount $%s exceeds the commission total $%s", money.Format(amount), money.Format(total)))
	case s.policy.ExactAmount && amount != total:
		reasons = append(reasons, fmt.Sprintf("amount must equal the commission total $%s", money.Format(total)))
	}
	return reasons
}

// settleCommissions marks every commission of p paid. Commissions already
// paid by an earlier attempt are skipped.
func (s *PayoutService) settleCommissions(ctx context.Context, p *payout.Payout) error {
	commissions, err := s.ledger.GetManyForUpdate(ctx, p.CommissionIDs)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*commission.Commission, len(commissions))
	for _, c := range commissions {
		byID[c.ID] = c
	}

	for _, id := range p.CommissionIDs {
		c, ok := byID[id]
		if !ok {
			return fmt.Errorf("commission %s: %w", id, domainErrors.ErrCommissionNotFound)
		}
		if c.Status == commission.StatusPaid {
			continue
		}
		if _, err := s.ledger.MarkPaid(ctx, id); err != nil {
			return fmt.Errorf("commission %s: %w", id, err)
		}
	}
	return nil
}

func (s *PayoutService) flagReconciliation(ctx context.Context, id uuid.UUID, before map[string]any, cause error) error {
	reason := "completion failed: " + cause.Error()

	var flagged *payout.Payout
	if err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		p, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		p.FlagReconciliation(reason)
		flagged = p
		return s.repo.Update(txCtx, p)
	}); err != nil {
		s.logger.Error().Err(err).Str("payout_id", id.String()).Msg("failed to flag payout for reconciliation")
	}

	event := &audit.Event{
		EntityType:  audit.EntityPayout,
		EntityID:    id.String(),
		Action:      "complete",
		Before:      before,
		Description: "payout flagged for reconciliation",
	}
	if flagged != nil {
		event.SellerID = &flagged.SellerID
		event.After = audit.Snapshot(flagged)
	}
	s.audit.Failure(ctx, event, cause)
	s.metrics.ReconciliationFlagged()
	s.logger.Error().Err(cause).Str("payout_id", id.String()).Msg("payout requires reconciliation")

	return domainErrors.NewDomainError("reconciliation_required", reason, domainErrors.ErrReconciliationRequired)
}

func (s *PayoutService) violation(code string, kind error, reasons ...string) error {
	s.metrics.RuleViolation(code)
	return domainErrors.NewRuleViolation(code, kind, reasons...)
}

func sellerLockKey(sellerID uuid.UUID) string {
	return "payout:seller:" + sellerID.String()
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
