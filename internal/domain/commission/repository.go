package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for commission persistence
type Repository interface {
	// Create inserts a commission; a second commission for the same
	// (order_id, line_item_id) fails with ErrDuplicateCommission.
	Create(ctx context.Context, c *Commission) error

	// GetByID retrieves a commission by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Commission, error)

	// GetForUpdate retrieves a commission and locks its row for the current transaction
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Commission, error)

	// GetByIDs retrieves every existing commission among ids; missing ids are skipped
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Commission, error)

	// GetManyForUpdate is GetByIDs with every returned row locked for the
	// current transaction. Rows are locked in id order.
	GetManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]*Commission, error)

	// Update persists status, timestamps, notes and metadata
	Update(ctx context.Context, c *Commission) error

	List(ctx context.Context, filter ListFilter) ([]*Commission, error)
	Count(ctx context.Context, filter ListFilter) (int, error)

	// ListByOrder returns every commission recorded for an order
	ListByOrder(ctx context.Context, orderID string) ([]*Commission, error)

	// ListPendingBefore returns pending commissions created before cutoff
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Commission, error)

	// Totals aggregates commissions by status; a nil sellerID aggregates the whole platform
	Totals(ctx context.Context, sellerID *uuid.UUID) ([]StatusTotals, error)
}

// ListFilter defines filters for listing commissions
type ListFilter struct {
	SellerID  *uuid.UUID
	OrderID   *string
	Status    *Status
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// StatusTotals is the sum of one status bucket.
type StatusTotals struct {
	Status           Status
	Count            int
	LineItemTotal    int64
	CommissionAmount int64
	SellerPayout     int64
}
