package providers

import (
	"context"
)

// PayoutResult is what a provider returns for an accepted transfer.
type PayoutResult struct {
	Reference    string
	Status       string // "success", "failed", "pending"
	ErrorMessage string
	Metadata     map[string]any
}

// Provider sends money to a seller through one payout method.
type Provider interface {
	// Name returns the payout method the provider serves.
	Name() string
	// SubmitPayout transfers the payout amount to the seller.
	SubmitPayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
}

type PayoutRequest struct {
	PayoutID    string
	SellerID    string
	AmountCents int64 // in cents
	Currency    string
	Attempt     int
	// IdempotencyKey identifies one transfer attempt. A provider that has
	// already answered a key returns the same answer without moving money.
	IdempotencyKey string
	Metadata       map[string]any
}
