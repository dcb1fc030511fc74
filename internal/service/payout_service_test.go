package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/audit"
	"github.com/cassiomorais/marketplace/internal/domain/commission"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/outbox"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/cassiomorais/marketplace/internal/infrastructure/observability"
	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/cassiomorais/marketplace/internal/testutil"
	"github.com/cassiomorais/marketplace/pkg/keylock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type payoutHarness struct {
	svc         *PayoutService
	ledger      *CommissionService
	commissions *testutil.MockCommissionRepository
	payouts     *testutil.MockPayoutRepository
	sellers     *testutil.MockSellerRepository
	outbox      *testutil.MockOutboxRepository
	recorder    *testutil.MockAuditRecorder
	seller      *seller.Seller
	// withLedger builds a service over the same stores that reaches the
	// ledger through ledger.
	withLedger func(ledger CommissionLedger) *PayoutService
}

func setupPayoutService(t *testing.T, opts ...func(*PayoutPolicy)) *payoutHarness {
	t.Helper()
	return setupPayoutServiceWithMetrics(t, nil, opts...)
}

func setupPayoutServiceWithMetrics(t *testing.T, metrics *observability.Metrics, opts ...func(*PayoutPolicy)) *payoutHarness {
	t.Helper()
	commissions := testutil.NewMockCommissionRepository()
	payouts := testutil.NewMockPayoutRepository()
	sellers := testutil.NewMockSellerRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	recorder := testutil.NewMockAuditRecorder()
	txManager := testutil.NewMockTransactionManager(commissions, payouts, sellers, outboxRepo)
	trail := NewAuditTrail(recorder, zerolog.Nop())
	evaluator := rules.NewEvaluator(rules.DefaultPolicy())

	policy := DefaultPayoutPolicy()
	policy.RequestLimit = rules.Limit{Max: 1000, Window: time.Hour}
	for _, opt := range opts {
		opt(&policy)
	}

	ledger := NewCommissionService(commissions, sellers, payouts, evaluator, txManager, trail, metrics, zerolog.Nop())
	withLedger := func(l CommissionLedger) *PayoutService {
		return NewPayoutService(payouts, l, sellers, outboxRepo, evaluator,
			rules.NewMemoryLimiter(), keylock.New(), txManager, trail, metrics, zerolog.Nop(), policy)
	}
	svc := withLedger(ledger)

	sel := testutil.NewVerifiedSeller()
	sellers.AddSeller(sel)

	return &payoutHarness{
		svc:         svc,
		ledger:      ledger,
		commissions: commissions,
		payouts:     payouts,
		sellers:     sellers,
		outbox:      outboxRepo,
		recorder:    recorder,
		seller:      sel,
		withLedger:  withLedger,
	}
}

// approved stores approved commissions for the harness seller with the
// given seller payouts and returns their ids.
func (h *payoutHarness) approved(sellerPayouts ...int64) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(sellerPayouts))
	for _, amount := range sellerPayouts {
		c := testutil.NewApprovedCommissionWithPayout(h.seller.ID, amount)
		h.commissions.AddCommission(c)
		ids = append(ids, c.ID)
	}
	return ids
}

func (h *payoutHarness) request(t *testing.T, ids []uuid.UUID, amount int64) *payout.Payout {
	t.Helper()
	p, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{
		SellerID:      h.seller.ID,
		CommissionIDs: ids,
		Amount:        amount,
	})
	require.NoError(t, err)
	return p
}

// toProcessing drives a requested payout through review into processing.
func (h *payoutHarness) toProcessing(t *testing.T, id uuid.UUID) *payout.Payout {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.Review(ctx, id, "admin_1", ReviewApprove, "")
	require.NoError(t, err)
	_, err = h.svc.Review(ctx, id, "admin_1", ReviewApprove, "looks good")
	require.NoError(t, err)
	p, err := h.svc.StartProcessing(ctx, id, "")
	require.NoError(t, err)
	return p
}

func successEvents(events []*audit.Event) []*audit.Event {
	var out []*audit.Event
	for _, e := range events {
		if e.Outcome == audit.OutcomeSuccess {
			out = append(out, e)
		}
	}
	return out
}

func requireReasons(t *testing.T, err error) []string {
	t.Helper()
	var violation *domainErrors.RuleViolationError
	require.True(t, errors.As(err, &violation), "expected RuleViolationError, got %v", err)
	return violation.Reasons
}

// --- RequestPayout Tests ---

func TestRequestPayout_ExampleScenario(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	ids := h.approved(4500, 2700, 1700)

	p := h.request(t, ids, 8900)
	assert.Equal(t, payout.StatusRequested, p.Status)
	assert.Equal(t, int64(8900), p.Amount)
	assert.Equal(t, ids, p.CommissionIDs)

	for _, id := range ids {
		_, err := h.svc.RequestPayout(ctx, RequestPayoutRequest{
			SellerID:      h.seller.ID,
			CommissionIDs: []uuid.UUID{id},
		})
		assert.ErrorIs(t, err, domainErrors.ErrCommissionReserved)
		assert.ErrorIs(t, err, domainErrors.ErrConflict)
	}

	h.toProcessing(t, p.ID)
	completed, err := h.svc.Complete(ctx, p.ID, "bank_ref_1", map[string]any{"batch": "b1"})
	require.NoError(t, err)
	assert.Equal(t, payout.StatusCompleted, completed.Status)
	assert.Equal(t, "bank_ref_1", *completed.PaymentReference)

	for _, id := range ids {
		assert.Equal(t, commission.StatusPaid, h.commissions.Commission(id).Status)
	}
}

func TestRequestPayout_ConcurrentOverlappingRequests(t *testing.T) {
	h := setupPayoutService(t)
	ids := h.approved(4500, 2700, 1700)
	sets := [][]uuid.UUID{
		ids,
		{ids[0], ids[1]},
		{ids[1], ids[2]},
		{ids[2], ids[0]},
		ids,
		ids,
		{ids[0], ids[1]},
		{ids[1], ids[2]},
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for _, set := range sets {
		wg.Add(1)
		go func(set []uuid.UUID) {
			defer wg.Done()
			_, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{
				SellerID:      h.seller.ID,
				CommissionIDs: set,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domainErrors.ErrCommissionReserved):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(set)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, len(sets)-1, conflicts)

	// No commission is held by two open payouts.
	held := make(map[uuid.UUID]uuid.UUID)
	for _, p := range h.payouts.Payouts() {
		if !p.HoldsReservation() {
			continue
		}
		for _, id := range p.CommissionIDs {
			other, dup := held[id]
			assert.False(t, dup, "commission %s held by %s and %s", id, other, p.ID)
			held[id] = p.ID
		}
	}
}

// racingLedger runs race once, the first time the orchestrator reads the
// commissions it is about to reserve.
type racingLedger struct {
	CommissionLedger
	once sync.Once
	race func()
}

func (l *racingLedger) GetManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]*commission.Commission, error) {
	l.once.Do(l.race)
	return l.CommissionLedger.GetManyForUpdate(ctx, ids)
}

func TestRequestPayout_ConcurrentDisputeOrCancel(t *testing.T) {
	tests := []struct {
		name   string
		change func(svc *CommissionService, id uuid.UUID) error
	}{
		{
			name: "dispute",
			change: func(svc *CommissionService, id uuid.UUID) error {
				_, err := svc.Dispute(context.Background(), id, "chargeback")
				return err
			},
		},
		{
			name: "cancel",
			change: func(svc *CommissionService, id uuid.UUID) error {
				_, err := svc.Cancel(context.Background(), id, "order refunded")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupPayoutService(t)
			ids := h.approved(4500)

			done := make(chan error, 1)
			ledger := &racingLedger{CommissionLedger: h.ledger}
			ledger.race = func() {
				go func() { done <- tt.change(h.ledger, ids[0]) }()
				// Give the change every chance to land before the reservation.
				time.Sleep(20 * time.Millisecond)
			}
			svc := h.withLedger(ledger)

			p, err := svc.RequestPayout(context.Background(), RequestPayoutRequest{
				SellerID:      h.seller.ID,
				CommissionIDs: ids,
			})
			require.NoError(t, err)

			select {
			case err := <-done:
				assert.ErrorIs(t, err, domainErrors.ErrCommissionReserved)
				assert.Contains(t, err.Error(), p.ID.String())
			case <-time.After(5 * time.Second):
				t.Fatal("commission change never finished")
			}
			assert.Equal(t, commission.StatusApproved, h.commissions.Commission(ids[0]).Status)
		})
	}
}

func TestRequestPayout_IneligibleSeller(t *testing.T) {
	h := setupPayoutService(t)
	ids := h.approved(4500)

	unverified := testutil.NewVerifiedSeller()
	unverified.ID = h.seller.ID
	unverified.VerificationStatus = seller.VerificationSuspended
	unverified.IsActive = false
	h.sellers.AddSeller(unverified)

	_, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{
		SellerID:      h.seller.ID,
		CommissionIDs: ids,
	})
	assert.ErrorIs(t, err, domainErrors.ErrIneligibleSeller)
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
	assert.Equal(t, []string{
		"Seller must be verified to request payouts",
		"Seller account is not active",
	}, requireReasons(t, err))
	assert.Empty(t, h.payouts.Payouts())
}

func TestRequestPayout_CooldownSinceLastPayout(t *testing.T) {
	h := setupPayoutService(t)
	first := h.approved(4500)
	second := h.approved(3000)

	h.request(t, first, 0)

	_, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{
		SellerID:      h.seller.ID,
		CommissionIDs: second,
	})
	assert.ErrorIs(t, err, domainErrors.ErrIneligibleSeller)
	assert.Equal(t, []string{"Must wait 7 more days before requesting another payout"}, requireReasons(t, err))
}

func TestRequestPayout_TooManyFailedPayouts(t *testing.T) {
	h := setupPayoutService(t)
	ids := h.approved(4500)
	h.payouts.HistoryFunc = func(ctx context.Context, sellerID uuid.UUID) (*payout.SellerHistory, error) {
		return &payout.SellerHistory{FailedCount: 3}, nil
	}

	_, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{
		SellerID:      h.seller.ID,
		CommissionIDs: ids,
	})
	assert.ErrorIs(t, err, domainErrors.ErrIneligibleSeller)
	assert.Equal(t, []string{"Seller account has too many failed payouts (3/3)"}, requireReasons(t, err))
}

func TestRequestPayout_InvalidCommissionSet(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *payoutHarness) []uuid.UUID
	}{
		{"empty", func(h *payoutHarness) []uuid.UUID { return nil }},
		{"unknown commission", func(h *payoutHarness) []uuid.UUID {
			return append(h.approved(4500), uuid.New())
		}},
		{"other seller", func(h *payoutHarness) []uuid.UUID {
			c := testutil.NewApprovedCommissionWithPayout(uuid.New(), 4500)
			h.commissions.AddCommission(c)
			return append(h.approved(4500), c.ID)
		}},
		{"pending commission", func(h *payoutHarness) []uuid.UUID {
			c := testutil.NewTestCommission(h.seller.ID, 5000, commission.StatusPending)
			h.commissions.AddCommission(c)
			return append(h.approved(4500), c.ID)
		}},
		{"paid commission", func(h *payoutHarness) []uuid.UUID {
			c := testutil.NewTestCommission(h.seller.ID, 5000, commission.StatusPaid)
			h.commissions.AddCommission(c)
			return []uuid.UUID{c.ID}
		}},
		{"mixed currency", func(h *payoutHarness) []uuid.UUID {
			c := testutil.NewApprovedCommissionWithPayout(h.seller.ID, 4500)
			c.CurrencyCode = "EUR"
			h.commissions.AddCommission(c)
			return append(h.approved(4500), c.ID)
		}},
		{"duplicate id", func(h *payoutHarness) []uuid.UUID {
			ids := h.approved(4500)
			return []uuid.UUID{ids[0], ids[0]}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupPayoutService(t)
			_, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{
				SellerID:      h.seller.ID,
				CommissionIDs: tt.setup(h),
			})
			assert.ErrorIs(t, err, domainErrors.ErrInvalidCommissionSet)
			assert.NotEmpty(t, requireReasons(t, err))
			assert.Empty(t, h.payouts.Payouts())
		})
	}
}

func TestRequestPayout_AmountOutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		payouts []int64
		amount  int64
		reason  string
	}{
		{"exceeds commission total", []int64{4500}, 5000, "amount $50.00 exceeds the commission total $45.00"},
		{"below minimum payout", []int64{4500}, 500, "Minimum payout amount is $10"},
		{"balance below request threshold", []int64{2000}, 0, "At least $25 in approved commissions is required to request a payout (have $20.00)"},
		{"above maximum payout", []int64{3000000, 3000000}, 0, "Maximum payout amount is $50000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupPayoutService(t)
			_, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{
				SellerID:      h.seller.ID,
				CommissionIDs: h.approved(tt.payouts...),
				Amount:        tt.amount,
			})
			assert.ErrorIs(t, err, domainErrors.ErrAmountOutOfRange)
			assert.Contains(t, requireReasons(t, err), tt.reason)
			assert.Empty(t, h.payouts.Payouts())
		})
	}
}

func TestRequestPayout_PartialAmount(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500, 2700), 5000)
	assert.Equal(t, int64(5000), p.Amount)
}

func TestRequestPayout_ExactAmountPolicy(t *testing.T) {
	h := setupPayoutService(t, func(p *PayoutPolicy) { p.ExactAmount = true })

	_, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{
		SellerID:      h.seller.ID,
		CommissionIDs: h.approved(4500, 2700),
		Amount:        5000,
	})
	assert.ErrorIs(t, err, domainErrors.ErrAmountOutOfRange)
}

func TestRequestPayout_DefaultsToSellerMethod(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500), 0)
	assert.Equal(t, payout.MethodBankTransfer, p.PaymentMethod)
	assert.Equal(t, int64(4500), p.Amount)

	h2 := setupPayoutService(t)
	p2, err := h2.svc.RequestPayout(context.Background(), RequestPayoutRequest{
		SellerID:      h2.seller.ID,
		CommissionIDs: h2.approved(4500),
		PaymentMethod: payout.MethodPayPal,
	})
	require.NoError(t, err)
	assert.Equal(t, payout.MethodPayPal, p2.PaymentMethod)
}

func TestRequestPayout_RateLimited(t *testing.T) {
	h := setupPayoutService(t, func(p *PayoutPolicy) {
		p.RequestLimit = rules.Limit{Max: 1, Window: time.Hour}
	})
	ctx := context.Background()
	ids := h.approved(4500)

	h.request(t, ids, 0)
	_, err := h.svc.RequestPayout(ctx, RequestPayoutRequest{SellerID: h.seller.ID, CommissionIDs: h.approved(3000)})
	assert.ErrorIs(t, err, domainErrors.ErrRateLimited)
}

func TestRequestPayout_SellerNotFound(t *testing.T) {
	h := setupPayoutService(t)
	_, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{
		SellerID:      uuid.New(),
		CommissionIDs: h.approved(4500),
	})
	assert.ErrorIs(t, err, domainErrors.ErrSellerNotFound)
}

func TestRequestPayout_AuditFailureDoesNotFailRequest(t *testing.T) {
	h := setupPayoutService(t)
	h.recorder.RecordFunc = func(ctx context.Context, event *audit.Event) error {
		return errors.New("audit store down")
	}

	p := h.request(t, h.approved(4500), 0)
	assert.Equal(t, payout.StatusRequested, p.Status)
}

func TestRequestPayout_RecordsAudit(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500), 0)

	events := h.recorder.Events("request")
	require.Len(t, events, 1)
	assert.Equal(t, audit.EntityPayout, events[0].EntityType)
	assert.Equal(t, p.ID.String(), events[0].EntityID)
	assert.Equal(t, audit.OutcomeSuccess, events[0].Outcome)
	assert.Equal(t, "system", events[0].ActorID)
}

func TestRequestPayout_ReservationConflictMetric(t *testing.T) {
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	h := setupPayoutServiceWithMetrics(t, metrics)
	ids := h.approved(4500)

	h.request(t, ids, 0)
	_, err := h.svc.RequestPayout(context.Background(), RequestPayoutRequest{SellerID: h.seller.ID, CommissionIDs: ids})
	require.ErrorIs(t, err, domainErrors.ErrCommissionReserved)

	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.ReservationConflicts))
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.PayoutTransitions.WithLabelValues("requested")))
}

// --- Review Tests ---

func TestReview_TwoStepApproval(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	p := h.request(t, h.approved(4500), 0)

	reviewed, err := h.svc.Review(ctx, p.ID, "admin_1", ReviewApprove, "")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusPendingReview, reviewed.Status)

	approved, err := h.svc.Review(ctx, p.ID, "admin_2", ReviewApprove, "ok")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusApproved, approved.Status)
	assert.Equal(t, "admin_2", *approved.ReviewedBy)
	assert.NotNil(t, approved.ApprovedAt)
}

func TestReview_RejectFreesCommissions(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	ids := h.approved(4500, 2700)
	p := h.request(t, ids, 0)

	rejected, err := h.svc.Review(ctx, p.ID, "admin_1", ReviewReject, "missing tax id")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusCancelled, rejected.Status)

	again := h.request(t, ids, 0)
	assert.NotEqual(t, p.ID, again.ID)
	assert.Equal(t, payout.StatusRequested, again.Status)
}

func TestReview_RejectAfterApprovalFails(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500), 0)
	h.toProcessing(t, p.ID)

	_, err := h.svc.Review(context.Background(), p.ID, "admin_1", ReviewReject, "")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	failures := h.recorder.Events("review_reject")
	require.Len(t, failures, 1)
	assert.Equal(t, audit.OutcomeFailure, failures[0].Outcome)
	assert.NotNil(t, failures[0].ErrorMessage)
}

func TestReview_UnknownDecision(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500), 0)

	_, err := h.svc.Review(context.Background(), p.ID, "admin_1", ReviewDecision("maybe"), "")
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
}

func TestReview_NotFound(t *testing.T) {
	h := setupPayoutService(t)
	_, err := h.svc.Review(context.Background(), uuid.New(), "admin_1", ReviewApprove, "")
	assert.ErrorIs(t, err, domainErrors.ErrPayoutNotFound)
}

// --- StartProcessing Tests ---

func TestStartProcessing_QueuesSettlement(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500), 0)
	processing := h.toProcessing(t, p.ID)

	assert.Equal(t, payout.StatusProcessing, processing.Status)
	entries := h.outbox.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventPayoutProcessing, entries[0].EventType)
	assert.Equal(t, p.ID, entries[0].AggregateID)
	assert.Equal(t, 1, entries[0].Payload["attempt"])
}

func TestStartProcessing_RequiresApproval(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500), 0)

	_, err := h.svc.StartProcessing(context.Background(), p.ID, payout.MethodStripe)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	assert.Empty(t, h.outbox.Entries())
}

func TestStartProcessing_OverridesMethod(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	p := h.request(t, h.approved(4500), 0)
	_, _ = h.svc.Review(ctx, p.ID, "admin_1", ReviewApprove, "")
	_, _ = h.svc.Review(ctx, p.ID, "admin_1", ReviewApprove, "")

	processing, err := h.svc.StartProcessing(ctx, p.ID, payout.MethodStripe)
	require.NoError(t, err)
	assert.Equal(t, payout.MethodStripe, processing.PaymentMethod)
}

// --- Complete Tests ---

func TestComplete_MarksEveryCommissionPaid(t *testing.T) {
	h := setupPayoutService(t)
	ids := h.approved(4500, 2700, 1700)
	p := h.request(t, ids, 0)
	h.toProcessing(t, p.ID)

	completed, err := h.svc.Complete(context.Background(), p.ID, "ref_1", nil)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusCompleted, completed.Status)
	assert.False(t, completed.ReconciliationRequired)
	for _, id := range ids {
		c := h.commissions.Commission(id)
		assert.Equal(t, commission.StatusPaid, c.Status)
		assert.NotNil(t, c.ApprovedAt)
		assert.NotNil(t, c.PaidAt)
	}

	reserved, _ := h.payouts.ReservedCommissionIDs(context.Background(), h.seller.ID)
	assert.Empty(t, reserved)
}

func TestComplete_MidBatchFailureFlagsReconciliation(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	ids := h.approved(4500, 2700, 1700)
	p := h.request(t, ids, 0)
	h.toProcessing(t, p.ID)

	// The second commission is disputed out of band while the payout is in flight.
	disputed := h.commissions.Commission(ids[1])
	disputed.Status = commission.StatusDisputed
	h.commissions.AddCommission(disputed)

	_, err := h.svc.Complete(ctx, p.ID, "ref_1", nil)
	assert.ErrorIs(t, err, domainErrors.ErrReconciliationRequired)

	// The commission paid before the failure is rolled back with the rest.
	assert.Equal(t, commission.StatusApproved, h.commissions.Commission(ids[0]).Status)
	assert.Empty(t, successEvents(h.recorder.Events("mark_paid")))
	require.Len(t, h.recorder.Events("mark_paid"), 1)

	stored, err := h.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusProcessing, stored.Status)
	assert.True(t, stored.ReconciliationRequired)
	assert.Nil(t, stored.CompletedAt)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, ids[1].String())

	// Once the commission is put right the payout can be completed.
	disputed.Status = commission.StatusApproved
	h.commissions.AddCommission(disputed)

	completed, err := h.svc.Complete(ctx, p.ID, "ref_1", nil)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusCompleted, completed.Status)
	assert.False(t, completed.ReconciliationRequired)
	for _, id := range ids {
		assert.Equal(t, commission.StatusPaid, h.commissions.Commission(id).Status)
	}
	assert.Len(t, successEvents(h.recorder.Events("mark_paid")), len(ids))
}

func TestComplete_PayoutWriteFailureKeepsCommissionsApproved(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	ids := h.approved(4500, 2700)
	p := h.request(t, ids, 0)
	h.toProcessing(t, p.ID)

	h.payouts.UpdateFunc = func(ctx context.Context, p *payout.Payout) error {
		return errors.New("connection reset")
	}
	_, err := h.svc.Complete(ctx, p.ID, "ref_1", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainErrors.ErrReconciliationRequired)
	h.payouts.UpdateFunc = nil

	for _, id := range ids {
		assert.Equal(t, commission.StatusApproved, h.commissions.Commission(id).Status)
	}
	assert.Empty(t, successEvents(h.recorder.Events("mark_paid")))
	assert.Empty(t, h.recorder.Events("complete"))
}

func TestComplete_PayoutFailedConcurrently(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	p := h.request(t, h.approved(4500), 0)
	stale := h.toProcessing(t, p.ID)
	_, err := h.svc.Fail(ctx, p.ID, "provider declined")
	require.NoError(t, err)

	// The first read still sees the payout processing; the locked read
	// inside the transaction sees it failed.
	calls := 0
	h.payouts.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
		calls++
		if calls == 1 {
			return stale, nil
		}
		for _, stored := range h.payouts.Payouts() {
			if stored.ID == id {
				return stored, nil
			}
		}
		return nil, domainErrors.ErrPayoutNotFound
	}

	_, err = h.svc.Complete(ctx, p.ID, "ref_1", nil)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	assert.NotErrorIs(t, err, domainErrors.ErrReconciliationRequired)
	h.payouts.GetByIDFunc = nil

	stored, err := h.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusFailed, stored.Status)
	assert.False(t, stored.ReconciliationRequired)
	assert.Equal(t, "provider declined", *stored.FailureReason)
}

func TestComplete_RequiresProcessing(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500), 0)

	_, err := h.svc.Complete(context.Background(), p.ID, "ref_1", nil)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	stored, _ := h.svc.Get(context.Background(), p.ID)
	assert.False(t, stored.ReconciliationRequired)
}

// --- RecordSubmission Tests ---

func TestRecordSubmission(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	p := h.request(t, h.approved(4500), 0)

	err := h.svc.RecordSubmission(ctx, p.ID, "bank_po_1", nil)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	h.toProcessing(t, p.ID)
	require.NoError(t, h.svc.RecordSubmission(ctx, p.ID, "bank_po_1", map[string]any{"provider": "bank"}))

	stored, err := h.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusProcessing, stored.Status)
	assert.True(t, stored.Submitted())
	assert.Equal(t, "bank_po_1", *stored.PaymentReference)
	assert.Equal(t, "bank", stored.PaymentMetadata["provider"])
}

// --- Fail / Retry / Cancel Tests ---

func TestRetry_CountsFailuresUntilLimit(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	p := h.request(t, h.approved(4500), 0)
	h.toProcessing(t, p.ID)

	for attempt := 1; attempt < payout.DefaultMaxRetries; attempt++ {
		failed, err := h.svc.Fail(ctx, p.ID, "insufficient provider balance")
		require.NoError(t, err)
		assert.Equal(t, payout.StatusFailed, failed.Status)
		assert.Equal(t, attempt, failed.RetryCount)

		retried, err := h.svc.Retry(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, payout.StatusProcessing, retried.Status)
		assert.Nil(t, retried.FailureReason)
		assert.Nil(t, retried.FailedAt)
	}

	failed, err := h.svc.Fail(ctx, p.ID, "insufficient provider balance")
	require.NoError(t, err)
	assert.Equal(t, payout.DefaultMaxRetries, failed.RetryCount)

	_, err = h.svc.Retry(ctx, p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrRetryLimitExceeded)

	stored, _ := h.svc.Get(ctx, p.ID)
	assert.Equal(t, payout.StatusFailed, stored.Status)
	assert.Equal(t, payout.DefaultMaxRetries, stored.RetryCount)

	var retried int
	for _, e := range h.outbox.Entries() {
		if e.EventType == outbox.EventPayoutRetried {
			retried++
		}
	}
	assert.Equal(t, payout.DefaultMaxRetries-1, retried)
}

func TestFail_RequiresProcessing(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500), 0)

	_, err := h.svc.Fail(context.Background(), p.ID, "boom")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestCancel_FailedPayoutFreesCommissions(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()
	ids := h.approved(4500)
	p := h.request(t, ids, 0)
	h.toProcessing(t, p.ID)
	_, err := h.svc.Fail(ctx, p.ID, "account closed")
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(ctx, p.ID, "admin_1", "seller to update bank details")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusCancelled, cancelled.Status)

	held, err := h.payouts.FindReservations(ctx, ids)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestCancel_ProcessingPayoutFails(t *testing.T) {
	h := setupPayoutService(t)
	p := h.request(t, h.approved(4500), 0)
	h.toProcessing(t, p.ID)

	_, err := h.svc.Cancel(context.Background(), p.ID, "admin_1", "")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

// --- Sweep Tests ---

func TestSweepTimedOut(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()

	stuck := h.request(t, h.approved(4500), 0)
	h.toProcessing(t, stuck.ID)

	flagged, err := payout.New(h.seller.ID, 3000, "USD", h.approved(3000), payout.MethodPayPal, 3)
	require.NoError(t, err)
	flagged.Status = payout.StatusProcessing
	started := time.Now().Add(-2 * time.Hour)
	flagged.ProcessingAt = &started
	flagged.FlagReconciliation("manual check")
	h.payouts.AddPayout(flagged)

	accepted, err := payout.New(h.seller.ID, 2000, "USD", h.approved(2000), payout.MethodBankTransfer, 3)
	require.NoError(t, err)
	accepted.Status = payout.StatusProcessing
	accepted.ProcessingAt = &started
	require.NoError(t, accepted.RecordSubmission("bank_po_9", nil))
	h.payouts.AddPayout(accepted)

	h.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	swept, err := h.svc.SweepTimedOut(ctx, time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	stored, _ := h.svc.Get(ctx, stuck.ID)
	assert.Equal(t, payout.StatusFailed, stored.Status)
	assert.Equal(t, "provider timeout", *stored.FailureReason)

	untouched, _ := h.svc.Get(ctx, flagged.ID)
	assert.Equal(t, payout.StatusProcessing, untouched.Status)

	submitted, _ := h.svc.Get(ctx, accepted.ID)
	assert.Equal(t, payout.StatusProcessing, submitted.Status)
}

// --- Reporting Tests ---

func TestStatsAndSellerSummary(t *testing.T) {
	h := setupPayoutService(t)
	ctx := context.Background()

	done := h.request(t, h.approved(4500), 0)
	h.toProcessing(t, done.ID)
	_, err := h.svc.Complete(ctx, done.ID, "ref", nil)
	require.NoError(t, err)

	h.svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	h.request(t, h.approved(3000), 0)

	stats, err := h.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedCount)
	assert.Equal(t, int64(4500), stats.CompletedAmount)
	assert.Equal(t, 1, stats.PendingCount)
	assert.Equal(t, int64(3000), stats.PendingAmount)

	summary, err := h.svc.SellerSummary(ctx, h.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), summary.TotalRequested)
	assert.Equal(t, int64(4500), summary.TotalPaid)
	assert.Equal(t, int64(3000), summary.TotalPending)
	assert.Equal(t, 2, summary.PayoutCount)
}

func TestList_FiltersAndCounts(t *testing.T) {
	h := setupPayoutService(t)
	h.request(t, h.approved(4500), 0)

	status := payout.StatusRequested
	items, total, err := h.svc.List(context.Background(), payout.ListFilter{SellerID: &h.seller.ID, Status: &status, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, total)

	other := payout.StatusCompleted
	items, total, err = h.svc.List(context.Background(), payout.ListFilter{Status: &other})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, total)
}
