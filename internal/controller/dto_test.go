package controller

import (
	"testing"

	"github.com/cassiomorais/marketplace/internal/domain/commission"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/money"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"whole", "100", 10000, false},
		{"two places", "123.45", 12345, false},
		{"one place", "7.5", 750, false},
		{"trailing zeros", "1.2300", 123, false},
		{"zero", "0", 0, false},
		{"min", "0.01", 1, false},
		{"sub-cent", "10.005", 0, true},
		{"negative", "-1.00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toCents("amount", decimal.RequireFromString(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("toCents() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				var ve *domainErrors.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, "amount", ve.Field)
				return
			}
			if got != tt.want {
				t.Errorf("toCents() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseUUIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	ids, err := parseUUIDs("commission_ids", []string{a.String(), b.String()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	_, err = parseUUIDs("commission_ids", []string{a.String(), "c1"})
	var ve *domainErrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "commission_ids", ve.Field)
	assert.Contains(t, ve.Message, "c1")
}

func TestFromPayout(t *testing.T) {
	sellerID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	p, err := payout.New(sellerID, 123456, "usd", ids, payout.MethodPayPal, 3)
	require.NoError(t, err)

	resp := FromPayout(p)

	assert.Equal(t, "1234.56", resp.Amount)
	assert.Equal(t, "USD", resp.CurrencyCode)
	assert.Equal(t, []string{ids[0].String(), ids[1].String()}, resp.CommissionIDs)
	assert.Equal(t, "requested", resp.Status)
	assert.Equal(t, "paypal", resp.PaymentMethod)
	assert.Equal(t, 3, resp.MaxRetries)
	assert.Nil(t, resp.PaymentReference)
}

func TestFromCommission(t *testing.T) {
	c := testutil.NewTestCommission(uuid.New(), 5005, commission.StatusApproved)

	resp := FromCommission(c)

	assert.Equal(t, c.ID.String(), resp.ID)
	assert.Equal(t, "approved", resp.Status)
	assert.Equal(t, money.Format(c.SellerPayout), resp.SellerPayout)
	assert.Equal(t, money.Format(c.CommissionAmount), resp.CommissionAmount)
}

func TestMapSlice(t *testing.T) {
	got := mapSlice([]int64{1, 250, 100000}, money.Format)
	assert.Equal(t, []string{"0.01", "2.50", "1000.00"}, got)
	assert.Empty(t, mapSlice([]int64(nil), money.Format))
}
