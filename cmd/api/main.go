package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/marketplace/internal/bootstrap"
	"github.com/cassiomorais/marketplace/internal/controller"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "marketplace-api", "marketplace")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svc, err := app.Services()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to wire services")
	}

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		HealthChecks: map[string]controller.Pinger{
			"database": app.Pool,
			"redis": controller.PingFunc(func(ctx context.Context) error {
				return app.Redis.Ping(ctx).Err()
			}),
		},
		SellerService:     svc.Sellers,
		CommissionService: svc.Commissions,
		PayoutService:     svc.Payouts,
		AuthzService:      svc.Authz,
		AuditReader:       svc.AuditRepo,
		IdempotencyStore:  svc.IdempotencyRepo,
		IdempotencyTTL:    app.Config.Worker.IdempotencyTTL,
		Metrics:           app.Metrics,
		CORSConfig:        app.Config.Server.CORS,
		JWTSecret:         app.Config.Auth.JWTSecret,
		RequestsPerMinute: app.Config.RateLimit.HTTPRequestsPerMinute,
		ServiceName:       "marketplace-api",
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
