package controller

import (
	"net/http"

	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/service"
)

type PayoutController struct {
	payoutService *service.PayoutService
	authzService  *service.AuthzService
}

func NewPayoutController(payoutService *service.PayoutService, authzService *service.AuthzService) *PayoutController {
	return &PayoutController{
		payoutService: payoutService,
		authzService:  authzService,
	}
}

// --- Store ---

// Request creates a payout for the calling seller. The seller always
// comes from the token, never from the body.
func (h *PayoutController) Request(w http.ResponseWriter, r *http.Request) {
	sellerID, err := h.authzService.CurrentSellerID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var req RequestPayoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ids, err := parseUUIDs("commission_ids", req.CommissionIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	var amount int64
	if req.Amount != nil {
		if amount, err = toCents("amount", *req.Amount); err != nil {
			writeError(w, err)
			return
		}
	}

	p, err := h.payoutService.RequestPayout(r.Context(), service.RequestPayoutRequest{
		SellerID:      sellerID,
		CommissionIDs: ids,
		Amount:        amount,
		PaymentMethod: payout.Method(req.PaymentMethod),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromPayout(p))
}

func (h *PayoutController) ListOwn(w http.ResponseWriter, r *http.Request) {
	sellerID, err := h.authzService.CurrentSellerID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	filter := payoutFilter(r)
	filter.SellerID = &sellerID
	h.list(w, r, filter)
}

func (h *PayoutController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.payoutService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.authzService.VerifySellerAccess(r.Context(), p.SellerID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayout(p))
}

// --- Admin ---

func (h *PayoutController) List(w http.ResponseWriter, r *http.Request) {
	filter := payoutFilter(r)
	sellerID, err := queryUUID(r, "seller_id")
	if err != nil {
		writeError(w, err)
		return
	}
	filter.SellerID = sellerID
	reconciliation, err := queryBool(r, "reconciliation_required")
	if err != nil {
		writeError(w, err)
		return
	}
	filter.ReconciliationRequired = reconciliation
	h.list(w, r, filter)
}

func (h *PayoutController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.payoutService.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayoutStats(stats))
}

func (h *PayoutController) Review(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req ReviewPayoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.payoutService.Review(r.Context(), id, h.authzService.ActorID(r.Context()), service.ReviewDecision(req.Decision), req.Notes)
	h.respond(w, p, err)
}

func (h *PayoutController) Process(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req ProcessPayoutRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.payoutService.StartProcessing(r.Context(), id, payout.Method(req.PaymentMethod))
	h.respond(w, p, err)
}

func (h *PayoutController) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req CompletePayoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.payoutService.Complete(r.Context(), id, req.PaymentReference, req.Metadata)
	h.respond(w, p, err)
}

func (h *PayoutController) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req FailPayoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.payoutService.Fail(r.Context(), id, req.Reason)
	h.respond(w, p, err)
}

func (h *PayoutController) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.payoutService.Retry(r.Context(), id)
	h.respond(w, p, err)
}

func (h *PayoutController) Cancel(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.payoutService.Cancel(r.Context(), id, h.authzService.ActorID(r.Context()), req.Reason)
	h.respond(w, p, err)
}

func (h *PayoutController) list(w http.ResponseWriter, r *http.Request, filter payout.ListFilter) {
	items, total, err := h.payoutService.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[*PayoutResponse]{
		Data:   mapSlice(items, FromPayout),
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (h *PayoutController) respond(w http.ResponseWriter, p *payout.Payout, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayout(p))
}

func payoutFilter(r *http.Request) payout.ListFilter {
	limit, offset := pagination(r)
	filter := payout.ListFilter{
		Limit:     limit,
		Offset:    offset,
		SortBy:    r.URL.Query().Get("sort_by"),
		SortOrder: r.URL.Query().Get("sort_order"),
	}
	if status := queryString(r, "status"); status != nil {
		s := payout.Status(*status)
		filter.Status = &s
	}
	return filter
}
