package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/marketplace/internal/bootstrap"
	infraRedis "github.com/cassiomorais/marketplace/internal/infrastructure/redis"
	"github.com/cassiomorais/marketplace/internal/providers"
	"github.com/cassiomorais/marketplace/internal/service"
	"github.com/cassiomorais/marketplace/internal/worker"
	"github.com/cassiomorais/marketplace/pkg/retry"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// publishedRetention is how long relayed outbox entries are kept.
const publishedRetention = 7 * 24 * time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "marketplace-worker", "marketplace_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svc, err := app.Services()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to wire services")
	}
	payoutCfg := app.Config.Payout
	workerCfg := app.Config.Worker

	// --- Payment providers ---
	factory := providers.NewFactoryWithConfig(providers.BreakerConfig{
		MinRequests: uint32(payoutCfg.CircuitBreakerThreshold),
		Timeout:     payoutCfg.CircuitBreakerTimeout,
	}).Observe(func(name string, from, to gobreaker.State) {
		app.Logger.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).
			Msg("Provider circuit breaker changed state")
		app.Metrics.BreakerState(name, breakerLevel(to))
	})

	settlement := service.NewSettlementService(
		svc.Payouts,
		factory,
		rate.NewLimiter(rate.Limit(payoutCfg.ProviderRPS), payoutCfg.ProviderBurst),
		retry.Config{
			MaxAttempts:  payoutCfg.SubmitAttempts,
			InitialDelay: payoutCfg.RetryDelay,
			MaxDelay:     payoutCfg.RetryDelay * 10,
		},
		app.Logger,
	)

	// --- Settlement stream ---
	producer := infraRedis.NewStreamProducer(app.Redis)
	stream := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.PayoutStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := stream.CreateGroup(ctx); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
	}
	consumer := worker.NewSettlementConsumer(stream, producer, settlement, app.Metrics, app.Logger)
	consumer.StaleAfter = 2 * payoutCfg.LockTTL
	relay := worker.NewOutboxRelay(svc.TxManager, svc.OutboxRepo, producer, int(workerCfg.BatchSize), app.Logger)

	// --- Maintenance jobs ---
	scheduler := worker.NewScheduler(app.Metrics, app.Logger)
	jobs := []worker.Job{
		{
			Name:     "payout_timeout_sweep",
			Schedule: workerCfg.TimeoutSweepSchedule,
			Timeout:  time.Minute,
			Run: func(ctx context.Context) (int, error) {
				return svc.Payouts.SweepTimedOut(ctx, payoutCfg.ProcessingTimeout, workerCfg.SweepBatchSize)
			},
		},
		{
			Name:     "commission_auto_approve",
			Schedule: workerCfg.AutoApproveSchedule,
			Timeout:  5 * time.Minute,
			Run: func(ctx context.Context) (int, error) {
				return svc.Commissions.AutoApproveMatured(ctx, app.Config.Commission.AutoApproveAfter, workerCfg.SweepBatchSize)
			},
		},
		{
			Name:     "idempotency_cleanup",
			Schedule: "@hourly",
			Timeout:  time.Minute,
			Run: func(ctx context.Context) (int, error) {
				n, err := svc.IdempotencyRepo.Cleanup(ctx)
				return int(n), err
			},
		},
		{
			Name:     "outbox_purge",
			Schedule: "@daily",
			Timeout:  5 * time.Minute,
			Run: func(ctx context.Context) (int, error) {
				return relay.Purge(ctx, publishedRetention)
			},
		},
	}
	for _, job := range jobs {
		if err := scheduler.Add(ctx, job); err != nil {
			app.Logger.Fatal().Err(err).Msg("Failed to schedule job")
		}
	}

	app.Logger.Info().
		Str("stream", infraRedis.PayoutStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gCtx) })
	g.Go(func() error { return relay.Run(gCtx, workerCfg.OutboxPollInterval) })
	g.Go(func() error { return scheduler.Run(gCtx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func breakerLevel(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
