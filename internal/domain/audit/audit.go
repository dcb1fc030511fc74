package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outcome records whether the audited action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entity types
const (
	EntityCommission = "commission"
	EntityPayout     = "payout"
	EntitySeller     = "seller"
)

// Event is one append-only audit record.
type Event struct {
	ID           uuid.UUID
	ActorID      string
	ActorRole    string
	SellerID     *uuid.UUID
	CustomerID   *string
	EntityType   string
	EntityID     string
	Action       string
	Before       map[string]any
	After        map[string]any
	Outcome      Outcome
	Description  string
	ErrorMessage *string
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}

// Recorder is the audit sink.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// Snapshot converts an entity into a JSON-shaped map for Before/After.
// Returns nil when v cannot be marshalled.
func Snapshot(v any) map[string]any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Repository lists stored audit events.
type Repository interface {
	Recorder
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Event, error)
}
