package worker

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/marketplace/internal/infrastructure/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// MessageSource is a consumer-group view of the settlement stream.
type MessageSource interface {
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
}

// DeadLetters parks messages that can never be processed.
type DeadLetters interface {
	PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error
}

// Settler submits one processing payout to its provider.
type Settler interface {
	Settle(ctx context.Context, payoutID uuid.UUID, attempt int) error
}

// SettlementConsumer feeds settlement messages to the settler. Messages are
// acknowledged once handled; infrastructure errors leave them pending so
// another worker can claim them after StaleAfter.
type SettlementConsumer struct {
	source     MessageSource
	dlq        DeadLetters
	settler    Settler
	metrics    *observability.Metrics
	logger     zerolog.Logger
	StaleAfter time.Duration
	backoff    time.Duration
}

func NewSettlementConsumer(source MessageSource, dlq DeadLetters, settler Settler, metrics *observability.Metrics, logger zerolog.Logger) *SettlementConsumer {
	return &SettlementConsumer{
		source:     source,
		dlq:        dlq,
		settler:    settler,
		metrics:    metrics,
		logger:     logger,
		StaleAfter: 5 * time.Minute,
		backoff:    time.Second,
	}
}

// Run reads and handles messages until ctx is done.
func (c *SettlementConsumer) Run(ctx context.Context) error {
	if stale, err := c.source.ClaimStale(ctx, c.StaleAfter); err != nil {
		c.logger.Warn().Err(err).Msg("failed to claim stale settlement messages")
	} else {
		c.HandleBatch(ctx, stale)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := c.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("failed to read settlement stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}
		c.HandleBatch(ctx, messages)
	}
}

// HandleBatch handles messages in order.
func (c *SettlementConsumer) HandleBatch(ctx context.Context, messages []redis.XMessage) {
	for _, msg := range messages {
		c.handle(ctx, msg)
	}
}

func (c *SettlementConsumer) handle(ctx context.Context, msg redis.XMessage) {
	start := time.Now()

	parsed, err := infraRedis.ParseSettlementMessage(msg)
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("malformed settlement message")
		c.deadLetter(ctx, msg, err.Error())
		c.metrics.MessageProcessed(infraRedis.PayoutStream, "malformed", time.Since(start))
		return
	}

	log := c.logger.With().
		Str("message_id", msg.ID).
		Str("payout_id", parsed.PayoutID.String()).
		Int("attempt", parsed.Attempt).
		Logger()

	err = c.settler.Settle(ctx, parsed.PayoutID, parsed.Attempt)
	switch {
	case err == nil:
		c.ack(ctx, msg.ID)
		c.metrics.MessageProcessed(infraRedis.PayoutStream, "success", time.Since(start))
	case errors.Is(err, domainErrors.ErrPayoutNotFound):
		log.Warn().Msg("settlement message for unknown payout")
		c.deadLetter(ctx, msg, err.Error())
		c.metrics.MessageProcessed(infraRedis.PayoutStream, "dead_letter", time.Since(start))
	default:
		// Left pending for redelivery.
		log.Error().Err(err).Msg("settlement failed")
		c.metrics.MessageProcessed(infraRedis.PayoutStream, "error", time.Since(start))
	}
}

func (c *SettlementConsumer) deadLetter(ctx context.Context, msg redis.XMessage, reason string) {
	if err := c.dlq.PublishToDLQ(ctx, msg, reason); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to dead-letter message")
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *SettlementConsumer) ack(ctx context.Context, id string) {
	if err := c.source.Ack(ctx, id); err != nil {
		c.logger.Error().Err(err).Str("message_id", id).Msg("failed to ack message")
	}
}
