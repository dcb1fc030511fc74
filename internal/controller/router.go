package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/marketplace/internal/infrastructure/config"
	"github.com/cassiomorais/marketplace/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/marketplace/internal/middleware"
	"github.com/cassiomorais/marketplace/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	HealthChecks      map[string]Pinger
	SellerService     *service.SellerService
	CommissionService *service.CommissionService
	PayoutService     *service.PayoutService
	AuthzService      *service.AuthzService
	AuditReader       AuditReader
	IdempotencyStore  customMW.IdempotencyStore
	IdempotencyTTL    time.Duration
	Metrics           *observability.Metrics
	MetricsHandler    http.Handler
	CORSConfig        config.CORSConfig
	JWTSecret         string
	// RequestsPerMinute limits each client IP and each authenticated user.
	RequestsPerMinute int
	ServiceName       string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(customMW.CaptureRequestInfo)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customMW.IdempotencyHeader},
		ExposedHeaders:   []string{"X-Idempotency-Replayed"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))
	r.Use(customMW.RateLimit(deps.RequestsPerMinute))

	healthH := NewHealthController(deps.HealthChecks)
	sellerH := NewSellerController(deps.SellerService, deps.AuthzService)
	commissionH := NewCommissionController(deps.CommissionService, deps.PayoutService, deps.AuthzService)
	payoutH := NewPayoutController(deps.PayoutService, deps.AuthzService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RequireAuth(deps.JWTSecret))
		r.Use(customMW.RateLimitByUser(deps.RequestsPerMinute))
		// Keys are scoped per user, so this runs after authentication.
		if deps.IdempotencyStore != nil {
			r.Use(customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL))
		}

		r.Route("/store", func(r chi.Router) {
			r.Use(customMW.RequireRole(customMW.RoleSeller, customMW.RoleAdmin))

			r.Post("/sellers", sellerH.Register)
			r.Get("/sellers/{id}", sellerH.Get)

			r.Get("/commissions", commissionH.ListOwn)
			r.Get("/commissions/{id}", commissionH.Get)
			r.Get("/earnings", commissionH.Earnings)

			r.Get("/payouts", payoutH.ListOwn)
			r.Post("/payouts", payoutH.Request)
			r.Get("/payouts/{id}", payoutH.Get)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(customMW.RequireRole(customMW.RoleAdmin))

			r.Get("/sellers", sellerH.List)
			r.Post("/sellers/{id}/verify", sellerH.Verify)
			r.Post("/sellers/{id}/reject", sellerH.Reject)
			r.Post("/sellers/{id}/suspend", sellerH.Suspend)
			r.Put("/sellers/{id}/commission-rate", sellerH.SetCommissionRate)
			r.Get("/sellers/{id}/risk", sellerH.Risk)

			r.Get("/commissions", commissionH.List)
			r.Post("/commissions", commissionH.RecordOrder)
			r.Post("/commissions/{id}/approve", commissionH.Approve)
			r.Post("/commissions/{id}/dispute", commissionH.Dispute)
			r.Post("/commissions/{id}/cancel", commissionH.Cancel)
			r.Post("/commissions/{id}/resolve", commissionH.Resolve)
			r.Post("/orders/{orderID}/commissions/approve", commissionH.ApproveOrder)
			r.Post("/orders/{orderID}/commissions/cancel", commissionH.CancelOrder)
			r.Get("/earnings/platform", commissionH.PlatformEarnings)

			r.Get("/payouts", payoutH.List)
			r.Get("/payouts/stats", payoutH.Stats)
			r.Post("/payouts/{id}/review", payoutH.Review)
			r.Post("/payouts/{id}/process", payoutH.Process)
			r.Post("/payouts/{id}/complete", payoutH.Complete)
			r.Post("/payouts/{id}/fail", payoutH.Fail)
			r.Post("/payouts/{id}/retry", payoutH.Retry)
			r.Post("/payouts/{id}/cancel", payoutH.Cancel)

			if deps.AuditReader != nil {
				auditH := NewAuditController(deps.AuditReader)
				r.Get("/audit/{entityType}/{entityID}", auditH.ListByEntity)
			}
		})
	})

	return r
}
