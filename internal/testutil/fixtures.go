package testutil

import (
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/commission"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewVerifiedSeller returns an active, verified seller registered a year ago.
func NewVerifiedSeller() *seller.Seller {
	now := time.Now()
	verifiedAt := now.AddDate(0, -11, 0)
	return &seller.Seller{
		ID:                 uuid.New(),
		CustomerID:         "cus_" + uuid.New().String()[:8],
		BusinessName:       "Acme Goods",
		Email:              "ops@acme.test",
		VerificationStatus: seller.VerificationVerified,
		IsActive:           true,
		PayoutMethod:       payout.MethodBankTransfer,
		Metadata:           make(map[string]any),
		VerifiedAt:         &verifiedAt,
		CreatedAt:          now.AddDate(-1, 0, 0),
		UpdatedAt:          now,
	}
}

// NewTestCommission returns a commission at a 10% rate in the given status.
func NewTestCommission(sellerID uuid.UUID, lineItemTotal int64, status commission.Status) *commission.Commission {
	now := time.Now()
	commissionAmount, sellerPayout, _ := commission.Calculate(lineItemTotal, decimal.NewFromInt(10))
	c := &commission.Commission{
		ID:               uuid.New(),
		OrderID:          "order_" + uuid.New().String()[:8],
		LineItemID:       "item_" + uuid.New().String()[:8],
		SellerID:         sellerID,
		ProductTitle:     "Widget",
		LineItemTotal:    lineItemTotal,
		Quantity:         1,
		CommissionRate:   decimal.NewFromInt(10),
		CommissionAmount: commissionAmount,
		SellerPayout:     sellerPayout,
		CurrencyCode:     "USD",
		Status:           status,
		Metadata:         make(map[string]any),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	switch status {
	case commission.StatusApproved:
		c.ApprovedAt = &now
	case commission.StatusPaid:
		c.ApprovedAt = &now
		c.PaidAt = &now
	}
	return c
}

// NewApprovedCommissionWithPayout returns an approved commission whose
// seller payout is exactly sellerPayout cents.
func NewApprovedCommissionWithPayout(sellerID uuid.UUID, sellerPayout int64) *commission.Commission {
	c := NewTestCommission(sellerID, sellerPayout, commission.StatusApproved)
	c.CommissionRate = decimal.Zero
	c.CommissionAmount = 0
	c.SellerPayout = sellerPayout
	return c
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func StringPtr(s string) *string {
	return &s
}
