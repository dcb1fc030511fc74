package controller

import (
	"net/http"

	"github.com/cassiomorais/marketplace/internal/domain/commission"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/money"
	"github.com/cassiomorais/marketplace/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CommissionController struct {
	commissionService *service.CommissionService
	payoutService     *service.PayoutService
	authzService      *service.AuthzService
}

func NewCommissionController(commissionService *service.CommissionService, payoutService *service.PayoutService, authzService *service.AuthzService) *CommissionController {
	return &CommissionController{
		commissionService: commissionService,
		payoutService:     payoutService,
		authzService:      authzService,
	}
}

// --- Store ---

// ListOwn lists the calling seller's commissions.
func (h *CommissionController) ListOwn(w http.ResponseWriter, r *http.Request) {
	sellerID, err := h.authzService.CurrentSellerID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	filter := commissionFilter(r)
	filter.SellerID = &sellerID
	h.list(w, r, filter)
}

func (h *CommissionController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.commissionService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.authzService.VerifySellerAccess(r.Context(), c.SellerID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromCommission(c))
}

// Earnings reports the calling seller's commission and payout totals.
func (h *CommissionController) Earnings(w http.ResponseWriter, r *http.Request) {
	sellerID, err := h.authzService.CurrentSellerID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	earnings, err := h.commissionService.SellerEarnings(r.Context(), sellerID)
	if err != nil {
		writeError(w, err)
		return
	}
	available, err := h.commissionService.AvailableForPayout(r.Context(), sellerID)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.payoutService.SellerSummary(r.Context(), sellerID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := FromEarnings(earnings)
	availableStr := money.Format(available)
	resp.AvailableForPayout = &availableStr
	writeJSON(w, http.StatusOK, SellerEarningsResponse{
		Earnings: resp,
		Payouts:  FromSellerSummary(summary),
	})
}

// --- Admin ---

func (h *CommissionController) List(w http.ResponseWriter, r *http.Request) {
	filter := commissionFilter(r)
	sellerID, err := queryUUID(r, "seller_id")
	if err != nil {
		writeError(w, err)
		return
	}
	filter.SellerID = sellerID
	h.list(w, r, filter)
}

// RecordOrder records a commission for every line item of an order.
func (h *CommissionController) RecordOrder(w http.ResponseWriter, r *http.Request) {
	var req RecordOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	items := make([]service.OrderLineItem, 0, len(req.Items))
	for _, item := range req.Items {
		sellerID, err := uuid.Parse(item.SellerID)
		if err != nil {
			writeError(w, domainErrors.NewValidationError("seller_id", "must be a valid UUID"))
			return
		}
		total, err := toCents("total", item.Total)
		if err != nil {
			writeError(w, err)
			return
		}
		items = append(items, service.OrderLineItem{
			LineItemID:   item.LineItemID,
			SellerID:     sellerID,
			ProductID:    item.ProductID,
			ProductTitle: item.ProductTitle,
			VariantID:    item.VariantID,
			Category:     item.Category,
			Total:        total,
			Quantity:     item.Quantity,
		})
	}

	recorded, err := h.commissionService.RecordOrder(r.Context(), service.RecordOrderRequest{
		OrderID:      req.OrderID,
		CurrencyCode: req.CurrencyCode,
		Items:        items,
		Metadata:     req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapSlice(recorded, FromCommission))
}

func (h *CommissionController) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.commissionService.Approve(r.Context(), id)
	h.respond(w, c, err)
}

func (h *CommissionController) Dispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req DisputeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.commissionService.Dispute(r.Context(), id, req.Notes)
	h.respond(w, c, err)
}

func (h *CommissionController) Cancel(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.commissionService.Cancel(r.Context(), id, req.Reason)
	h.respond(w, c, err)
}

func (h *CommissionController) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req ResolveDisputeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.commissionService.ResolveDispute(r.Context(), id, commission.Resolution(req.Outcome), req.Notes)
	h.respond(w, c, err)
}

func (h *CommissionController) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.commissionService.ApproveForOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromBulkResult(result))
}

func (h *CommissionController) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.commissionService.CancelForOrder(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromBulkResult(result))
}

func (h *CommissionController) PlatformEarnings(w http.ResponseWriter, r *http.Request) {
	earnings, err := h.commissionService.PlatformEarnings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromEarnings(earnings))
}

func (h *CommissionController) list(w http.ResponseWriter, r *http.Request, filter commission.ListFilter) {
	items, total, err := h.commissionService.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[*CommissionResponse]{
		Data:   mapSlice(items, FromCommission),
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (h *CommissionController) respond(w http.ResponseWriter, c *commission.Commission, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromCommission(c))
}

func commissionFilter(r *http.Request) commission.ListFilter {
	limit, offset := pagination(r)
	filter := commission.ListFilter{
		OrderID:   queryString(r, "order_id"),
		Limit:     limit,
		Offset:    offset,
		SortBy:    r.URL.Query().Get("sort_by"),
		SortOrder: r.URL.Query().Get("sort_order"),
	}
	if status := queryString(r, "status"); status != nil {
		s := commission.Status(*status)
		filter.Status = &s
	}
	return filter
}
