package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Event types relayed to the settlement worker.
const (
	EventPayoutProcessing = "payout.processing"
	EventPayoutRetried    = "payout.retried"
)

const AggregatePayout = "payout"

// Entry is a message written in the same transaction as the state change
// that produced it, then relayed to the stream by the worker.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    5,
		CreatedAt:     time.Now(),
	}
}

// RecordFailure counts a failed publish. The entry stays pending until it
// has failed MaxRetries times.
func (e *Entry) RecordFailure() {
	e.RetryCount++
	if e.RetryCount >= e.MaxRetries {
		e.Status = StatusFailed
	}
}

// MarkPublished records a successful relay.
func (e *Entry) MarkPublished(at time.Time) {
	e.Status = StatusPublished
	e.PublishedAt = &at
}

// NewPayoutSettlement builds the entry asking the worker to submit a
// processing payout to its payment provider.
func NewPayoutSettlement(payoutID uuid.UUID, eventType, method string, amountCents int64, currency string, attempt int) *Entry {
	return NewEntry(AggregatePayout, payoutID, eventType, map[string]any{
		"payout_id":      payoutID.String(),
		"payment_method": method,
		"amount_cents":   amountCents,
		"currency":       currency,
		"attempt":        attempt,
	})
}
