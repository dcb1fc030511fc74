package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/cassiomorais/marketplace/internal/middleware"
	"github.com/cassiomorais/marketplace/internal/repository/postgres"
	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/cassiomorais/marketplace/internal/service"
	"github.com/cassiomorais/marketplace/internal/testutil"
	"github.com/cassiomorais/marketplace/pkg/keylock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "controller-test-secret-0123456789abcdef"

// --- Test Helpers ---

type memoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
}

func (s *memoryIdempotencyStore) Get(_ context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key], nil
}

func (s *memoryIdempotencyStore) Set(_ context.Context, entry *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

type apiHarness struct {
	router      http.Handler
	sellers     *testutil.MockSellerRepository
	commissions *testutil.MockCommissionRepository
	payouts     *testutil.MockPayoutRepository
	outbox      *testutil.MockOutboxRepository
	recorder    *testutil.MockAuditRecorder
	seller      *seller.Seller
}

func setupAPI(t *testing.T) *apiHarness {
	t.Helper()
	sellers := testutil.NewMockSellerRepository()
	commissions := testutil.NewMockCommissionRepository()
	payouts := testutil.NewMockPayoutRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	recorder := testutil.NewMockAuditRecorder()
	txManager := testutil.NewMockTransactionManager(sellers, commissions, payouts, outboxRepo)
	trail := service.NewAuditTrail(recorder, zerolog.Nop())
	evaluator := rules.NewEvaluator(rules.DefaultPolicy())
	limiter := rules.NewMemoryLimiter()

	policy := service.DefaultPayoutPolicy()
	policy.RequestLimit = rules.Limit{Max: 1000, Window: time.Hour}

	sellerSvc := service.NewSellerService(sellers, evaluator, limiter, trail, zerolog.Nop(), rules.Limit{Max: 1000, Window: time.Hour})
	commissionSvc := service.NewCommissionService(commissions, sellers, payouts, evaluator, txManager, trail, nil, zerolog.Nop())
	payoutSvc := service.NewPayoutService(payouts, commissionSvc, sellers, outboxRepo, evaluator,
		limiter, keylock.New(), txManager, trail, nil, zerolog.Nop(), policy)

	router := NewRouter(RouterDeps{
		SellerService:     sellerSvc,
		CommissionService: commissionSvc,
		PayoutService:     payoutSvc,
		AuthzService:      service.NewAuthzService(),
		AuditReader:       recorder,
		IdempotencyStore:  &memoryIdempotencyStore{entries: map[string]*postgres.IdempotencyEntry{}},
		IdempotencyTTL:    time.Hour,
		MetricsHandler:    http.NotFoundHandler(),
		JWTSecret:         testJWTSecret,
		ServiceName:       "marketplace-test",
	})

	sel := testutil.NewVerifiedSeller()
	sellers.AddSeller(sel)

	return &apiHarness{
		router:      router,
		sellers:     sellers,
		commissions: commissions,
		payouts:     payouts,
		outbox:      outboxRepo,
		recorder:    recorder,
		seller:      sel,
	}
}

func token(t *testing.T, claims middleware.Claims) string {
	t.Helper()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func adminToken(t *testing.T) string {
	return token(t, middleware.Claims{UserID: "admin_1", Role: middleware.RoleAdmin})
}

func sellerToken(t *testing.T, s *seller.Seller) string {
	return token(t, middleware.Claims{UserID: s.CustomerID, Role: middleware.RoleSeller, SellerID: s.ID.String()})
}

func customerToken(t *testing.T, customerID string) string {
	return token(t, middleware.Claims{UserID: customerID, Role: middleware.RoleSeller})
}

// do sends body as JSON with bearer tok. Extra headers are key/value pairs.
func (h *apiHarness) do(t *testing.T, method, path, tok string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// approved stores approved commissions for the harness seller and returns their ids.
func (h *apiHarness) approved(sellerPayouts ...int64) []string {
	ids := make([]string, 0, len(sellerPayouts))
	for _, amount := range sellerPayouts {
		c := testutil.NewApprovedCommissionWithPayout(h.seller.ID, amount)
		h.commissions.AddCommission(c)
		ids = append(ids, c.ID.String())
	}
	return ids
}

func mustParse(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
