package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every sentinel below unwraps to exactly one of these so
// transport layers can map whole families at once.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidationFailed  = errors.New("validation failed")
	ErrExternalProvider  = errors.New("external provider error")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrLockNotHeld       = errors.New("lock not held")
	ErrLockAcquireFailed = errors.New("failed to acquire lock")
)

var (
	// Commission errors
	ErrCommissionNotFound  = kind(ErrNotFound, "commission not found")
	ErrInvalidRate         = kind(ErrValidationFailed, "commission rate must be between 0 and 100")
	ErrInvalidAmount       = kind(ErrValidationFailed, "invalid amount")
	ErrInvalidCurrency     = kind(ErrValidationFailed, "invalid currency")
	ErrDuplicateCommission = kind(ErrConflict, "commission already recorded for line item")

	// Payout errors
	ErrPayoutNotFound         = kind(ErrNotFound, "payout not found")
	ErrInvalidStateTransition = kind(ErrConflict, "invalid state transition")
	ErrCommissionReserved     = kind(ErrConflict, "commission already reserved by another payout")
	ErrInvalidCommissionSet   = kind(ErrValidationFailed, "invalid commission set")
	ErrAmountOutOfRange       = kind(ErrValidationFailed, "payout amount out of range")
	ErrIneligibleSeller       = kind(ErrValidationFailed, "seller is not eligible for payouts")
	ErrRetryLimitExceeded     = kind(ErrConflict, "retry limit exceeded")
	ErrReconciliationRequired = kind(ErrConflict, "payout requires manual reconciliation")

	// Seller errors
	ErrSellerNotFound          = kind(ErrNotFound, "seller not found")
	ErrSellerAlreadyRegistered = kind(ErrConflict, "customer is already registered as a seller")

	// Provider errors
	ErrProviderNotFound    = errors.New("payment provider not found")
	ErrProviderUnavailable = kind(ErrExternalProvider, "payment provider unavailable")
	ErrProviderRejected    = kind(ErrExternalProvider, "payout rejected by provider")
	ErrProviderTimeout     = kind(ErrExternalProvider, "provider request timeout")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = kind(ErrConflict, "duplicate idempotency key")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func kind(k error, msg string) error {
	return &kindError{msg: msg, kind: k}
}

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// RuleViolationError carries every violated business rule, not only the
// first one, so callers can render the full list.
type RuleViolationError struct {
	Code    string
	Reasons []string
	Err     error
}

func (e *RuleViolationError) Error() string {
	if len(e.Reasons) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, strings.Join(e.Reasons, "; "))
}

func (e *RuleViolationError) Unwrap() error {
	return e.Err
}

// NewRuleViolation creates a rule violation wrapping err.
func NewRuleViolation(code string, err error, reasons ...string) *RuleViolationError {
	return &RuleViolationError{
		Code:    code,
		Reasons: reasons,
		Err:     err,
	}
}
