package payout

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for payout persistence.
//
// Create and Update maintain the reservation index: a non-terminal payout
// reserves its commissions, and reaching a terminal status releases them.
type Repository interface {
	// Create inserts a payout and reserves its commissions. A commission
	// already reserved by another payout fails with ErrCommissionReserved.
	Create(ctx context.Context, p *Payout) error

	GetByID(ctx context.Context, id uuid.UUID) (*Payout, error)

	// GetForUpdate retrieves a payout and locks its row for the current transaction
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Payout, error)

	// Update persists the payout and releases its reservation once terminal
	Update(ctx context.Context, p *Payout) error

	List(ctx context.Context, filter ListFilter) ([]*Payout, error)
	Count(ctx context.Context, filter ListFilter) (int, error)

	// FindReservations maps each reserved commission among ids to the
	// non-terminal payout holding it
	FindReservations(ctx context.Context, commissionIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)

	// ReservedCommissionIDs lists every commission of a seller held by a non-terminal payout
	ReservedCommissionIDs(ctx context.Context, sellerID uuid.UUID) ([]uuid.UUID, error)

	// History returns the eligibility context for a seller
	History(ctx context.Context, sellerID uuid.UUID) (*SellerHistory, error)

	// ListProcessingBefore returns payouts stuck in processing since before cutoff
	ListProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Payout, error)

	// Totals aggregates payouts by status; a nil sellerID covers every seller
	Totals(ctx context.Context, sellerID *uuid.UUID) ([]StatusTotals, error)
}

// ListFilter defines filters for listing payouts
type ListFilter struct {
	SellerID               *uuid.UUID
	Status                 *Status
	ReconciliationRequired *bool
	Limit                  int
	Offset                 int
	SortBy                 string
	SortOrder              string
}

// SellerHistory is what the eligibility rules need to know about past payouts.
type SellerHistory struct {
	// LastRequestedAt is the request time of the latest payout that was not cancelled
	LastRequestedAt *time.Time
	// FailedCount is the number of payouts currently in status failed
	FailedCount int
}

// StatusTotals is the count and sum of one status bucket.
type StatusTotals struct {
	Status Status
	Count  int
	Amount int64
}

// Stats summarizes payouts for the admin dashboard.
type Stats struct {
	PendingCount    int
	PendingAmount   int64
	ApprovedCount   int
	ApprovedAmount  int64
	ProcessingCount int
	CompletedCount  int
	CompletedAmount int64
	FailedCount     int
	FailedAmount    int64
}

// SellerSummary summarizes payouts for one seller.
type SellerSummary struct {
	TotalRequested int64
	TotalPaid      int64
	TotalPending   int64
	PayoutCount    int
}

// SummarizeStats folds per-status totals into Stats. Requested and
// pending_review both count as pending.
func SummarizeStats(totals []StatusTotals) Stats {
	var s Stats
	for _, t := range totals {
		switch t.Status {
		case StatusRequested, StatusPendingReview:
			s.PendingCount += t.Count
			s.PendingAmount += t.Amount
		case StatusApproved:
			s.ApprovedCount += t.Count
			s.ApprovedAmount += t.Amount
		case StatusProcessing:
			s.ProcessingCount += t.Count
		case StatusCompleted:
			s.CompletedCount += t.Count
			s.CompletedAmount += t.Amount
		case StatusFailed:
			s.FailedCount += t.Count
			s.FailedAmount += t.Amount
		}
	}
	return s
}

// SummarizeSeller folds per-status totals into a SellerSummary.
// Cancelled payouts count toward PayoutCount only.
func SummarizeSeller(totals []StatusTotals) SellerSummary {
	var s SellerSummary
	for _, t := range totals {
		s.PayoutCount += t.Count
		switch t.Status {
		case StatusCancelled:
		case StatusCompleted:
			s.TotalRequested += t.Amount
			s.TotalPaid += t.Amount
		default:
			s.TotalRequested += t.Amount
			s.TotalPending += t.Amount
		}
	}
	return s
}
