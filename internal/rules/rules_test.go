package rules_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func verifiedSeller(t *testing.T) *seller.Seller {
	t.Helper()
	s := seller.New("cus_1", "Acme Goods", "ops@acme.test", payout.MethodBankTransfer)
	require.NoError(t, s.Verify())
	s.CreatedAt = now.AddDate(-1, 0, 0)
	return s
}

func newEvaluator() *rules.Evaluator {
	p := rules.DefaultPolicy()
	p.CategoryRates = map[string]decimal.Decimal{"electronics": decimal.NewFromInt(8)}
	return rules.NewEvaluator(p)
}

// --- Commission Rate Tests ---

func TestResolveCommissionRate(t *testing.T) {
	e := newEvaluator()
	override := decimal.RequireFromString("12.5")
	tooHigh := decimal.NewFromInt(140)

	tests := []struct {
		name     string
		seller   func(s *seller.Seller)
		category string
		want     string
	}{
		{"default", nil, "", "10"},
		{"category", nil, "Electronics", "8"},
		{"unknown category falls back", nil, "books", "10"},
		{"seller override wins", func(s *seller.Seller) { s.CommissionRate = &override }, "electronics", "12.5"},
		{"override clamped", func(s *seller.Seller) { s.CommissionRate = &tooHigh }, "", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := verifiedSeller(t)
			if tt.seller != nil {
				tt.seller(s)
			}
			got := e.ResolveCommissionRate(s, tt.category)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestClampRate(t *testing.T) {
	assert.True(t, rules.ClampRate(decimal.NewFromInt(-5)).IsZero())
	assert.True(t, rules.ClampRate(decimal.NewFromInt(101)).Equal(decimal.NewFromInt(100)))
	assert.True(t, rules.ClampRate(decimal.RequireFromString("7.25")).Equal(decimal.RequireFromString("7.25")))
}

// --- Eligibility Tests ---

func TestCheckPayoutEligibility_Eligible(t *testing.T) {
	e := newEvaluator()
	last := now.Add(-8 * 24 * time.Hour)

	res := e.CheckPayoutEligibility(verifiedSeller(t), &last, 0, now)
	assert.True(t, res.Eligible)
	assert.Empty(t, res.Reasons)
}

func TestCheckPayoutEligibility_CollectsAllReasons(t *testing.T) {
	e := newEvaluator()
	s := seller.New("cus_2", "Beta Shop", "beta@shop.test", payout.MethodPayPal)
	s.IsActive = false
	last := now.Add(-2 * 24 * time.Hour)

	res := e.CheckPayoutEligibility(s, &last, 3, now)
	assert.False(t, res.Eligible)
	assert.Equal(t, []string{
		"Seller must be verified to request payouts",
		"Seller account is not active",
		"Must wait 5 more days before requesting another payout",
		"Seller account has too many failed payouts (3/3)",
	}, res.Reasons)
}

func TestCheckPayoutEligibility_CooldownRoundsUp(t *testing.T) {
	e := newEvaluator()
	last := now.Add(-6*24*time.Hour - time.Hour)

	res := e.CheckPayoutEligibility(verifiedSeller(t), &last, 0, now)
	require.Len(t, res.Reasons, 1)
	assert.Equal(t, "Must wait 1 more days before requesting another payout", res.Reasons[0])
}

func TestCheckPayoutEligibility_NilSeller(t *testing.T) {
	res := newEvaluator().CheckPayoutEligibility(nil, nil, 0, now)
	assert.False(t, res.Eligible)
}

// --- Amount Tests ---

func TestCheckAmountRange(t *testing.T) {
	e := newEvaluator()
	tests := []struct {
		amount int64
		valid  bool
		reason string
	}{
		{999, false, "Minimum payout amount is $10"},
		{1000, true, ""},
		{5000000, true, ""},
		{5000001, false, "Maximum payout amount is $50000"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.amount), func(t *testing.T) {
			res := e.CheckAmountRange(tt.amount)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestCheckRequestThreshold(t *testing.T) {
	e := newEvaluator()

	reason, ok := e.CheckRequestThreshold(2499)
	assert.False(t, ok)
	assert.Contains(t, reason, "$25")
	assert.Contains(t, reason, "$24.99")

	_, ok = e.CheckRequestThreshold(2500)
	assert.True(t, ok)
}

// --- Risk Tests ---

func TestScoreSellerRisk(t *testing.T) {
	e := newEvaluator()
	low := 2.4

	t.Run("clean established seller", func(t *testing.T) {
		res := e.ScoreSellerRisk(verifiedSeller(t), now)
		assert.Equal(t, 0, res.Score)
		assert.Equal(t, rules.RiskLow, res.Level)
		assert.Empty(t, res.Flags)
	})

	t.Run("medium", func(t *testing.T) {
		s := verifiedSeller(t)
		s.SuspensionCount = 2
		s.Rating = &low
		res := e.ScoreSellerRisk(s, now)
		assert.Equal(t, 35, res.Score)
		assert.Equal(t, rules.RiskMedium, res.Level)
		assert.Equal(t, []string{"2 previous suspensions", "Low rating: 2.4"}, res.Flags)
	})

	t.Run("high", func(t *testing.T) {
		s := verifiedSeller(t)
		s.SuspensionCount = 1
		s.Rating = &low
		s.ChargebackCount = 12
		s.CreatedAt = now.Add(-48 * time.Hour)
		res := e.ScoreSellerRisk(s, now)
		assert.Equal(t, 70, res.Score)
		assert.Equal(t, rules.RiskHigh, res.Level)
		assert.Contains(t, res.Flags, "High chargebacks: 12")
		assert.Contains(t, res.Flags, "Very new seller")
	})
}

// --- Registration Tests ---

func TestValidateSellerRegistration(t *testing.T) {
	tests := []struct {
		name    string
		reg     rules.Registration
		reasons []string
	}{
		{"valid", rules.Registration{BusinessName: "Acme", Email: "a@acme.test", PayoutMethod: payout.MethodStripe}, nil},
		{"short name", rules.Registration{BusinessName: "Ab", Email: "a@acme.test", PayoutMethod: payout.MethodStripe},
			[]string{"business_name must be between 3 and 255 characters"}},
		{"everything wrong", rules.Registration{BusinessName: " ", Email: "nope", PayoutMethod: "cash"},
			[]string{
				"business_name must be between 3 and 255 characters",
				"Invalid business_email format",
				"payout_method must be one of: bank_transfer, paypal, stripe",
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reasons, rules.ValidateSellerRegistration(tt.reg))
		})
	}
}

// --- Limiter Tests ---

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	clock := now
	l := rules.NewMemoryLimiter().WithClock(func() time.Time { return clock })
	limit := rules.Limit{Max: 3, Window: time.Minute}
	ctx := context.Background()

	for i := 2; i >= 0; i-- {
		d, err := l.Allow(ctx, "seller:1", limit)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Remaining)
		assert.Equal(t, now.Add(time.Minute), d.ResetAt)
	}

	d, _ := l.Allow(ctx, "seller:1", limit)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	other, _ := l.Allow(ctx, "seller:2", limit)
	assert.True(t, other.Allowed)

	clock = now.Add(time.Minute)
	d, _ = l.Allow(ctx, "seller:1", limit)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestMemoryLimiter_Reset(t *testing.T) {
	l := rules.NewMemoryLimiter()
	limit := rules.Limit{Max: 1, Window: time.Hour}
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a", limit)
	_, _ = l.Allow(ctx, "b", limit)
	d, _ := l.Allow(ctx, "a", limit)
	require.False(t, d.Allowed)

	l.Reset("a")
	d, _ = l.Allow(ctx, "a", limit)
	assert.True(t, d.Allowed)

	l.ResetAll()
	d, _ = l.Allow(ctx, "b", limit)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	clock := now
	l := rules.NewMemoryLimiter().WithClock(func() time.Time { return clock })
	_, _ = l.Allow(context.Background(), "a", rules.Limit{Max: 1, Window: time.Second})
	_, _ = l.Allow(context.Background(), "b", rules.Limit{Max: 1, Window: time.Hour})

	clock = now.Add(time.Minute)
	assert.Equal(t, 1, l.Sweep())
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l := rules.NewMemoryLimiter()
	limit := rules.Limit{Max: 10, Window: time.Hour}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := l.Allow(context.Background(), "k", limit)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}
