package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Specific sentinels come before the kind they unwrap to.
var errorMappings = []errorMapping{
	{domainErrors.ErrCommissionReserved, http.StatusConflict, "commission_reserved"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrRetryLimitExceeded, http.StatusConflict, "retry_limit_exceeded"},
	{domainErrors.ErrReconciliationRequired, http.StatusConflict, "reconciliation_required"},
	{domainErrors.ErrDuplicateCommission, http.StatusConflict, "duplicate_commission"},
	{domainErrors.ErrSellerAlreadyRegistered, http.StatusConflict, "seller_already_registered"},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
	{domainErrors.ErrNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrConflict, http.StatusConflict, "conflict"},
	{domainErrors.ErrInvalidCurrency, http.StatusBadRequest, "invalid_currency"},
	{domainErrors.ErrInvalidRate, http.StatusBadRequest, "invalid_rate"},
	{domainErrors.ErrValidationFailed, http.StatusBadRequest, "validation_error"},
	{domainErrors.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{domainErrors.ErrExternalProvider, http.StatusBadGateway, "provider_error"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var violation *domainErrors.RuleViolationError
	if errors.As(err, &violation) {
		resp.Code = violation.Code
		resp.Reasons = violation.Reasons
		writeJSON(w, statusFor(err, http.StatusBadRequest), resp)
		return
	}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		resp.Field = validationErr.Field
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, statusFor(err, http.StatusUnprocessableEntity), resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			writeJSON(w, m.status, resp)
			return
		}
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

// statusFor returns the mapped status of err, or fallback.
func statusFor(err error, fallback int) int {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return fallback
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

// decodeOptional is decodeAndValidate for endpoints whose body may be empty.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return validate.Struct(dst)
	}
	return decodeAndValidate(r, dst)
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError(name, "must be a valid UUID")
	}
	return id, nil
}

// pagination reads limit and offset. Limit defaults to 20 and is capped at 100.
func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domainErrors.NewValidationError(name, "must be a valid UUID")
	}
	return &id, nil
}

func queryString(r *http.Request, name string) *string {
	if v := r.URL.Query().Get(name); v != "" {
		return &v
	}
	return nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, domainErrors.NewValidationError(name, "must be true or false")
	}
	return &v, nil
}
