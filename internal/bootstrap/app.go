package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cassiomorais/marketplace/internal/infrastructure/config"
	"github.com/cassiomorais/marketplace/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/marketplace/internal/infrastructure/redis"
	"github.com/cassiomorais/marketplace/internal/repository/postgres"
	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/cassiomorais/marketplace/internal/service"
	"github.com/cassiomorais/marketplace/pkg/keylock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	shutdownTracer func(context.Context) error
}

// Services is the wired domain layer shared by the API and the worker.
type Services struct {
	SellerRepo      *postgres.SellerRepository
	CommissionRepo  *postgres.CommissionRepository
	PayoutRepo      *postgres.PayoutRepository
	AuditRepo       *postgres.AuditRepository
	OutboxRepo      *postgres.OutboxRepository
	IdempotencyRepo *postgres.IdempotencyRepository
	TxManager       *postgres.TxManager

	Sellers     *service.SellerService
	Commissions *service.CommissionService
	Payouts     *service.PayoutService
	Authz       *service.AuthzService
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout).
		With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()
	logger.Info().Msg("Starting")

	shutdownTracer, err := observability.InitTracer(
		cfg.Observability.EnableTracing, serviceName, cfg.InstanceID, cfg.Observability.JaegerEndpoint,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		shutdownTracer = func(context.Context) error { return nil }
	} else if cfg.Observability.EnableTracing {
		logger.Info().Str("endpoint", cfg.Observability.JaegerEndpoint).Msg("Tracing enabled")
	}

	var metrics *observability.Metrics
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	pool, err := postgres.NewPool(ctx, &cfg.Database, serviceName, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:         cfg,
		Logger:         logger,
		Pool:           pool,
		Redis:          redisClient,
		Metrics:        metrics,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Services wires repositories, rules and services. The redis rate limit
// backend also selects redis locks; the memory backend keeps both in
// process and is only correct for a single instance.
func (a *App) Services() (*Services, error) {
	policy, err := a.Config.RulesPolicy()
	if err != nil {
		return nil, err
	}
	evaluator := rules.NewEvaluator(policy)

	var (
		limiter service.RateLimiter
		locker  service.Locker
	)
	switch a.Config.RateLimit.Backend {
	case "memory":
		limiter = rules.NewMemoryLimiter()
		locker = keylock.New()
	default:
		limiter = infraRedis.NewRateLimiter(a.Redis)
		locker = infraRedis.NewLocker(a.Redis, a.Config.Payout.LockTTL, a.Logger)
	}

	s := &Services{
		SellerRepo:      postgres.NewSellerRepository(a.Pool),
		CommissionRepo:  postgres.NewCommissionRepository(a.Pool),
		PayoutRepo:      postgres.NewPayoutRepository(a.Pool),
		AuditRepo:       postgres.NewAuditRepository(a.Pool),
		OutboxRepo:      postgres.NewOutboxRepository(a.Pool),
		IdempotencyRepo: postgres.NewIdempotencyRepository(a.Pool),
		TxManager:       postgres.NewTxManager(a.Pool),
		Authz:           service.NewAuthzService(),
	}

	trail := service.NewAuditTrail(s.AuditRepo, a.Logger)
	rl := a.Config.RateLimit

	s.Sellers = service.NewSellerService(s.SellerRepo, evaluator, limiter, trail, a.Logger,
		rules.Limit{Max: rl.Registrations, Window: rl.RegistrationWindow})
	s.Commissions = service.NewCommissionService(s.CommissionRepo, s.SellerRepo, s.PayoutRepo,
		evaluator, s.TxManager, trail, a.Metrics, a.Logger)
	s.Payouts = service.NewPayoutService(s.PayoutRepo, s.Commissions, s.SellerRepo, s.OutboxRepo,
		evaluator, limiter, locker, s.TxManager, trail, a.Metrics, a.Logger,
		service.PayoutPolicy{
			MaxRetries:   a.Config.Payout.MaxRetries,
			ExactAmount:  a.Config.Payout.ExactAmount,
			RequestLimit: rules.Limit{Max: rl.PayoutRequests, Window: rl.PayoutWindow},
		})

	a.Logger.Info().
		Str("rate_limit_backend", rl.Backend).
		Str("default_rate", policy.DefaultCommissionRate.String()).
		Msg("Services wired")
	return s, nil
}

func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracer(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Tracer shutdown failed")
	}
	a.Redis.Close()
	a.Pool.Close()
}
