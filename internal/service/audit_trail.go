package service

import (
	"context"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/audit"
	"github.com/cassiomorais/marketplace/internal/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditTrail records audit events without ever failing the caller.
type AuditTrail struct {
	recorder audit.Recorder
	logger   zerolog.Logger
}

// NewAuditTrail wraps recorder. A nil recorder only logs.
func NewAuditTrail(recorder audit.Recorder, logger zerolog.Logger) *AuditTrail {
	return &AuditTrail{recorder: recorder, logger: logger}
}

// Record fills in the id, timestamp and actor from ctx, then stores the
// event. Storage errors are logged and dropped.
func (a *AuditTrail) Record(ctx context.Context, event *audit.Event) {
	if a == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Outcome == "" {
		event.Outcome = audit.OutcomeSuccess
	}
	if claims, ok := middleware.GetClaims(ctx); ok {
		if event.ActorID == "" {
			event.ActorID = claims.UserID
		}
		if event.ActorRole == "" {
			event.ActorRole = claims.Role
		}
	}
	if info, ok := middleware.GetRequestInfo(ctx); ok {
		if event.IPAddress == "" {
			event.IPAddress = info.IPAddress
		}
		if event.UserAgent == "" {
			event.UserAgent = info.UserAgent
		}
	}
	if event.ActorID == "" {
		event.ActorID = "system"
		event.ActorRole = "system"
	}

	if a.recorder == nil {
		a.logger.Debug().
			Str("entity_type", event.EntityType).
			Str("entity_id", event.EntityID).
			Str("action", event.Action).
			Msg("audit event")
		return
	}

	if err := a.recorder.Record(ctx, event); err != nil {
		a.logger.Error().Err(err).
			Str("entity_type", event.EntityType).
			Str("entity_id", event.EntityID).
			Str("action", event.Action).
			Msg("failed to record audit event")
	}
}

// Failure records a failed action with its error message.
func (a *AuditTrail) Failure(ctx context.Context, event *audit.Event, cause error) {
	event.Outcome = audit.OutcomeFailure
	if cause != nil {
		msg := cause.Error()
		event.ErrorMessage = &msg
	}
	a.Record(ctx, event)
}
