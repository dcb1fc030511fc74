package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/outbox"
	"github.com/cassiomorais/marketplace/internal/service"
	"github.com/rs/zerolog"
)

// Publisher delivers an outbox entry to the settlement stream.
type Publisher interface {
	Publish(ctx context.Context, entry *outbox.Entry) error
}

// OutboxRelay moves pending outbox entries onto the settlement stream.
// Entries are claimed inside a transaction so concurrent relays never
// publish the same entry twice in one pass.
type OutboxRelay struct {
	tx        service.TransactionManager
	outbox    outbox.Repository
	publisher Publisher
	batchSize int
	logger    zerolog.Logger
}

func NewOutboxRelay(tx service.TransactionManager, repo outbox.Repository, publisher Publisher, batchSize int, logger zerolog.Logger) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &OutboxRelay{
		tx:        tx,
		outbox:    repo,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
	}
}

// RelayOnce publishes one batch and returns how many entries were published.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.outbox.GetPending(txCtx, r.batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := r.publisher.Publish(ctx, entry); err != nil {
				r.logger.Error().Err(err).
					Str("outbox_id", entry.ID.String()).
					Str("event_type", entry.EventType).
					Msg("failed to publish outbox entry")
				if err := r.outbox.MarkFailed(txCtx, entry.ID); err != nil {
					return err
				}
				continue
			}
			if err := r.outbox.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	return published, err
}

// Run relays on every tick until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if n, err := r.RelayOnce(ctx); err != nil {
			r.logger.Error().Err(err).Msg("outbox relay error")
		} else if n > 0 {
			r.logger.Debug().Int("published", n).Msg("outbox entries relayed")
		}
	}
}

// Purge deletes entries relayed more than retention ago.
func (r *OutboxRelay) Purge(ctx context.Context, retention time.Duration) (int, error) {
	n, err := r.outbox.PurgePublished(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
