package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "payout_failed",
				Message: "payout settlement failed",
				Err:     errors.New("provider timeout"),
			},
			expected: "payout settlement failed: provider timeout",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "cannot complete payout in current state",
			},
			expected: "cannot complete payout in current state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_IsThroughChain(t *testing.T) {
	err := NewDomainError("invalid_transition", "cannot transition from paid to approved", ErrInvalidStateTransition)

	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSentinelKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{ErrCommissionNotFound, ErrNotFound},
		{ErrPayoutNotFound, ErrNotFound},
		{ErrSellerNotFound, ErrNotFound},
		{ErrCommissionReserved, ErrConflict},
		{ErrRetryLimitExceeded, ErrConflict},
		{ErrReconciliationRequired, ErrConflict},
		{ErrInvalidRate, ErrValidationFailed},
		{ErrAmountOutOfRange, ErrValidationFailed},
		{ErrIneligibleSeller, ErrValidationFailed},
		{ErrProviderRejected, ErrExternalProvider},
		{ErrProviderTimeout, ErrExternalProvider},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("amount", "must be greater than 0")

	assert.Equal(t, "validation failed for field amount: must be greater than 0", err.Error())
	assert.ErrorIs(t, err, ErrValidationFailed)

	var ve *ValidationError
	require.ErrorAs(t, error(err), &ve)
	assert.Equal(t, "amount", ve.Field)
}

func TestRuleViolationError(t *testing.T) {
	err := NewRuleViolation("ineligible_seller", ErrIneligibleSeller,
		"Seller must be verified to request payouts",
		"Seller account is not active",
	)

	assert.ErrorIs(t, err, ErrIneligibleSeller)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Len(t, err.Reasons, 2)
	assert.Equal(t,
		"seller is not eligible for payouts: Seller must be verified to request payouts; Seller account is not active",
		err.Error(),
	)

	bare := NewRuleViolation("x", ErrAmountOutOfRange)
	assert.Equal(t, ErrAmountOutOfRange.Error(), bare.Error())
}
