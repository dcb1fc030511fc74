package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cassiomorais/marketplace/internal/infrastructure/config"
	"github.com/cassiomorais/marketplace/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const pingAttempts = 5

// NewPool opens the pool and blocks until PostgreSQL answers, retrying while
// the database container is still starting.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, appName string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pc, err := poolConfig(cfg, appName)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool for %s: %w", cfg.Host, err)
	}

	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  pingAttempts,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		OnRetry: func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Str("host", cfg.Host).Msg("PostgreSQL not ready, retrying")
		},
	}, func() error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s after %d attempts: %w", cfg.Host, pingAttempts, err)
	}
	return pool, nil
}

func poolConfig(cfg *config.DatabaseConfig, appName string) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxConnections)
	pc.MinConns = int32(cfg.MinConnections)
	pc.MaxConnLifetime = cfg.ConnMaxLifetime
	pc.MaxConnIdleTime = 30 * time.Minute
	pc.HealthCheckPeriod = time.Minute

	params := pc.ConnConfig.RuntimeParams
	if appName != "" {
		params["application_name"] = appName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return pc, nil
}
