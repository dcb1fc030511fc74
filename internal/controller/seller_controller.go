package controller

import (
	"context"
	"net/http"

	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/cassiomorais/marketplace/internal/middleware"
	"github.com/cassiomorais/marketplace/internal/service"
	"github.com/google/uuid"
)

type SellerController struct {
	sellerService *service.SellerService
	authzService  *service.AuthzService
}

func NewSellerController(sellerService *service.SellerService, authzService *service.AuthzService) *SellerController {
	return &SellerController{
		sellerService: sellerService,
		authzService:  authzService,
	}
}

// Register registers the authenticated customer as a seller.
func (h *SellerController) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterSellerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	customerID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	sel, err := h.sellerService.Register(r.Context(), service.RegisterSellerRequest{
		CustomerID:   customerID,
		BusinessName: req.BusinessName,
		Email:        req.Email,
		Phone:        req.Phone,
		TaxID:        req.TaxID,
		PayoutMethod: payout.Method(req.PayoutMethod),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromSeller(sel))
}

func (h *SellerController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	sel, err := h.sellerService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	// The registering customer may read the record before a seller token exists.
	if userID, _ := middleware.GetUserID(r.Context()); userID != sel.CustomerID {
		if err := h.authzService.VerifySellerAccess(r.Context(), sel.ID); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, FromSeller(sel))
}

func (h *SellerController) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	filter := seller.ListFilter{Limit: limit, Offset: offset}

	if status := queryString(r, "verification_status"); status != nil {
		s := seller.VerificationStatus(*status)
		filter.VerificationStatus = &s
	}
	active, err := queryBool(r, "is_active")
	if err != nil {
		writeError(w, err)
		return
	}
	filter.IsActive = active

	sellers, total, err := h.sellerService.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[*SellerResponse]{
		Data:   mapSlice(sellers, FromSeller),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *SellerController) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	sel, err := h.sellerService.Verify(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromSeller(sel))
}

func (h *SellerController) Reject(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.sellerService.Reject)
}

func (h *SellerController) Suspend(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.sellerService.Suspend)
}

func (h *SellerController) SetCommissionRate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req SetCommissionRateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sel, err := h.sellerService.SetCommissionRate(r.Context(), id, req.Rate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromSeller(sel))
}

func (h *SellerController) Risk(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	assessment, err := h.sellerService.AssessRisk(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromRisk(assessment))
}

func (h *SellerController) withReason(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id uuid.UUID, reason string) (*seller.Seller, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req ReasonRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sel, err := apply(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromSeller(sel))
}
