package service

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/providers"
	"github.com/cassiomorais/marketplace/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// PayoutSettler is the part of the orchestrator the settlement worker reports to.
type PayoutSettler interface {
	Get(ctx context.Context, id uuid.UUID) (*payout.Payout, error)
	Complete(ctx context.Context, id uuid.UUID, reference string, metadata map[string]any) (*payout.Payout, error)
	RecordSubmission(ctx context.Context, id uuid.UUID, reference string, metadata map[string]any) error
	Fail(ctx context.Context, id uuid.UUID, reason string) (*payout.Payout, error)
}

// PayoutSubmitter sends a payout to the provider for its method.
type PayoutSubmitter interface {
	Submit(ctx context.Context, method payout.Method, req providers.PayoutRequest) (*providers.PayoutResult, error)
}

// SettlementService submits processing payouts to their payment provider
// and reports the outcome back to the orchestrator.
type SettlementService struct {
	payouts   PayoutSettler
	submitter PayoutSubmitter
	throttle  *rate.Limiter
	retry     retry.Config
	logger    zerolog.Logger
}

func NewSettlementService(
	payouts PayoutSettler,
	submitter PayoutSubmitter,
	throttle *rate.Limiter,
	retryCfg retry.Config,
	logger zerolog.Logger,
) *SettlementService {
	if throttle == nil {
		throttle = rate.NewLimiter(rate.Inf, 0)
	}
	retryCfg.RetryIf = isTransientProviderError
	return &SettlementService{
		payouts:   payouts,
		submitter: submitter,
		throttle:  throttle,
		retry:     retryCfg,
		logger:    logger,
	}
}

// Settle submits one payout. Payouts no longer in processing are skipped,
// so redelivered messages are harmless. A transfer the provider accepted is
// recorded on the payout before it is completed, and a payout that already
// carries one is completed without another submission. A provider failure
// is recorded on the payout and is not returned as an error.
func (s *SettlementService) Settle(ctx context.Context, payoutID uuid.UUID, attempt int) error {
	p, err := s.payouts.Get(ctx, payoutID)
	if err != nil {
		return err
	}
	if p.Status != payout.StatusProcessing || p.ReconciliationRequired {
		s.logger.Debug().
			Str("payout_id", payoutID.String()).
			Str("status", string(p.Status)).
			Msg("skipping settlement of payout not awaiting the provider")
		return nil
	}

	if p.Submitted() {
		s.logger.Info().
			Str("payout_id", payoutID.String()).
			Str("reference", *p.PaymentReference).
			Msg("completing payout already accepted by provider")
		return s.complete(ctx, payoutID, *p.PaymentReference, nil)
	}

	if err := s.throttle.Wait(ctx); err != nil {
		return err
	}

	req := providers.PayoutRequest{
		PayoutID:       p.ID.String(),
		SellerID:       p.SellerID.String(),
		AmountCents:    p.Amount,
		Currency:       p.CurrencyCode,
		Attempt:        attempt,
		IdempotencyKey: fmt.Sprintf("%s:%d", p.ID, p.RetryCount+1),
		Metadata:       map[string]any{"commission_count": len(p.CommissionIDs)},
	}

	cfg := s.retry
	cfg.OnRetry = func(n uint, err error) {
		s.logger.Warn().Err(err).
			Str("payout_id", payoutID.String()).
			Uint("attempt", n+1).
			Msg("provider submission failed, retrying")
	}
	result, err := retry.DoWithResult(ctx, cfg, func() (*providers.PayoutResult, error) {
		return s.submitter.Submit(ctx, p.PaymentMethod, req)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := err.Error()
		if result != nil && result.ErrorMessage != "" {
			reason = result.ErrorMessage
		}
		if _, failErr := s.payouts.Fail(ctx, payoutID, reason); failErr != nil {
			return fmt.Errorf("record provider failure: %w", failErr)
		}
		s.logger.Warn().Err(err).Str("payout_id", payoutID.String()).Msg("payout failed at provider")
		return nil
	}

	if err := s.payouts.RecordSubmission(ctx, payoutID, result.Reference, result.Metadata); err != nil {
		return fmt.Errorf("record provider reference %s: %w", result.Reference, err)
	}
	return s.complete(ctx, payoutID, result.Reference, result.Metadata)
}

func (s *SettlementService) complete(ctx context.Context, payoutID uuid.UUID, reference string, metadata map[string]any) error {
	if _, err := s.payouts.Complete(ctx, payoutID, reference, metadata); err != nil {
		if errors.Is(err, domainErrors.ErrReconciliationRequired) {
			return nil
		}
		return err
	}
	s.logger.Info().
		Str("payout_id", payoutID.String()).
		Str("reference", reference).
		Msg("payout settled")
	return nil
}

// isTransientProviderError reports whether another attempt may succeed.
// Explicit rejections and unknown providers are final.
func isTransientProviderError(err error) bool {
	switch {
	case errors.Is(err, domainErrors.ErrProviderRejected),
		errors.Is(err, domainErrors.ErrProviderNotFound),
		errors.Is(err, domainErrors.ErrProviderUnavailable),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
