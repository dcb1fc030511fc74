package controller

import (
	"context"
	"net/http"

	"github.com/cassiomorais/marketplace/internal/domain/audit"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/go-chi/chi/v5"
)

// AuditReader lists the audit history of one entity, newest first.
type AuditReader interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*audit.Event, error)
}

type AuditController struct {
	reader AuditReader
}

func NewAuditController(reader AuditReader) *AuditController {
	return &AuditController{reader: reader}
}

func (h *AuditController) ListByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	switch entityType {
	case audit.EntityCommission, audit.EntityPayout, audit.EntitySeller:
	default:
		writeError(w, domainErrors.NewValidationError("entity_type", "must be one of commission, payout, seller"))
		return
	}
	if _, err := pathID(r, "entityID"); err != nil {
		writeError(w, err)
		return
	}

	limit, _ := pagination(r)
	events, err := h.reader.ListByEntity(r.Context(), entityType, chi.URLParam(r, "entityID"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(events, FromAuditEvent))
}
