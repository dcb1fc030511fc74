package seller

import (
	"context"

	"github.com/google/uuid"
)

// Reader is the read-only view other components need of sellers.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Seller, error)
}

// Repository defines the interface for seller persistence
type Repository interface {
	Reader

	// Create inserts a seller; one seller per customer
	Create(ctx context.Context, s *Seller) error
	GetByCustomerID(ctx context.Context, customerID string) (*Seller, error)
	Update(ctx context.Context, s *Seller) error
	List(ctx context.Context, filter ListFilter) ([]*Seller, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
}

// ListFilter defines filters for listing sellers
type ListFilter struct {
	VerificationStatus *VerificationStatus
	IsActive           *bool
	Limit              int
	Offset             int
}
