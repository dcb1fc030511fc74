package controller

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registration() RegisterSellerRequest {
	return RegisterSellerRequest{
		BusinessName: "Blue Fern Ceramics",
		Email:        "Hello@BlueFern.test",
		PayoutMethod: "paypal",
	}
}

func TestSellerController_Register(t *testing.T) {
	h := setupAPI(t)
	tok := customerToken(t, "cus_fern")

	w := h.do(t, http.MethodPost, "/api/v1/store/sellers", tok, registration())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[SellerResponse](t, w)
	assert.Equal(t, "cus_fern", resp.CustomerID, "customer comes from the token")
	assert.Equal(t, "hello@bluefern.test", resp.Email)
	assert.Equal(t, "pending", resp.VerificationStatus)

	// The registering customer can read the record without a seller token.
	w = h.do(t, http.MethodGet, "/api/v1/store/sellers/"+resp.ID, tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/store/sellers", tok, registration())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "seller_already_registered", decode[ErrorResponse](t, w).Code)
}

func TestSellerController_RegisterValidation(t *testing.T) {
	h := setupAPI(t)

	tests := []struct {
		name   string
		modify func(*RegisterSellerRequest)
		field  string
	}{
		{"bad email", func(r *RegisterSellerRequest) { r.Email = "not-an-email" }, "Email"},
		{"unknown method", func(r *RegisterSellerRequest) { r.PayoutMethod = "cheque" }, "PayoutMethod"},
		{"missing name", func(r *RegisterSellerRequest) { r.BusinessName = "" }, "BusinessName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := registration()
			tt.modify(&req)

			w := h.do(t, http.MethodPost, "/api/v1/store/sellers", customerToken(t, "cus_x"), req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, "validation_error", resp.Code)
			assert.Equal(t, tt.field, resp.Field)
		})
	}
}

func TestSellerController_GetOtherSellerForbidden(t *testing.T) {
	h := setupAPI(t)

	w := h.do(t, http.MethodGet, "/api/v1/store/sellers/"+h.seller.ID.String(), customerToken(t, "cus_intruder"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/store/sellers/"+h.seller.ID.String(), sellerToken(t, h.seller), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/store/sellers/not-a-uuid", sellerToken(t, h.seller), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSellerController_AdminLifecycle(t *testing.T) {
	h := setupAPI(t)
	admin := adminToken(t)

	w := h.do(t, http.MethodPost, "/api/v1/store/sellers", customerToken(t, "cus_new"), registration())
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[SellerResponse](t, w).ID
	base := "/api/v1/admin/sellers/" + id

	w = h.do(t, http.MethodGet, "/api/v1/admin/sellers?verification_status=pending", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ListResponse[SellerResponse]](t, w)
	assert.Equal(t, 1, list.Total)

	w = h.do(t, http.MethodPost, base+"/verify", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "verified", decode[SellerResponse](t, w).VerificationStatus)

	w = h.do(t, http.MethodPost, base+"/reject", admin, ReasonRequest{Reason: "too late"})
	assert.Equal(t, http.StatusConflict, w.Code, "verified sellers cannot be rejected")

	w = h.do(t, http.MethodPut, base+"/commission-rate", admin, map[string]any{"rate": "7.5"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SellerResponse](t, w)
	require.NotNil(t, resp.CommissionRate)
	assert.Equal(t, "7.50", *resp.CommissionRate)

	w = h.do(t, http.MethodPut, base+"/commission-rate", admin, map[string]any{"rate": "120"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_rate", decode[ErrorResponse](t, w).Code)

	w = h.do(t, http.MethodGet, base+"/risk", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	risk := decode[RiskResponse](t, w)
	assert.Equal(t, "low", risk.Level)
}
