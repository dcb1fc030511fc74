package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists outbox entries. Insert joins the caller's
// transaction; GetPending locks the rows it returns until that
// transaction ends.
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	GetPending(ctx context.Context, limit int) ([]*Entry, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	// MarkFailed counts a failed publish; see Entry.RecordFailure.
	MarkFailed(ctx context.Context, id uuid.UUID) error
	// PurgePublished deletes entries published before cutoff.
	PurgePublished(ctx context.Context, cutoff time.Time) (int64, error)
}
