package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
)

const statusSuccess = "success"

type SuccessResponse struct {
	Status  string      `json:"status"`
	Payload interface{} `json:"payload"`
}

type ErrorResponse struct {
	Status    string                   `json:"status"`
	Message   string                   `json:"message"`
	Code      string                   `json:"code,omitempty"`
	Product   string                   `json:"product,omitempty"`
	Available *int                     `json:"available,omitempty"`
	Requested *int                     `json:"requested,omitempty"`
	Errors    []domain.ValidationError `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondSuccess(w http.ResponseWriter, status int, payload interface{}) {
	respondJSON(w, status, SuccessResponse{Status: statusSuccess, Payload: payload})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Status:  "error",
		Message: message,
		Code:    code,
	})
}

// handleError converts a service error into a status code and error body.
// Unknown errors are logged and hidden behind a generic message.
func handleError(w http.ResponseWriter, log *logger.Logger, err error) {
	resp := ErrorResponse{Status: "error", Message: err.Error()}
	var status int

	var stockErr *domain.StockError
	var unavailable *domain.UnavailableError
	var fieldErr *domain.ValidationError
	var fieldErrs domain.ValidationErrors

	switch {
	case errors.As(err, &fieldErrs):
		status, resp.Code = http.StatusBadRequest, "invalid_argument"
		resp.Errors = fieldErrs
	case errors.As(err, &fieldErr):
		status, resp.Code = http.StatusBadRequest, "invalid_argument"
		resp.Errors = []domain.ValidationError{*fieldErr}
	case errors.Is(err, domain.ErrValidation):
		status, resp.Code = http.StatusBadRequest, "invalid_argument"
	case errors.As(err, &stockErr):
		status, resp.Code = http.StatusConflict, "insufficient_stock"
		resp.Product = stockErr.ProductTitle
		resp.Available, resp.Requested = &stockErr.Available, &stockErr.Requested
	case errors.As(err, &unavailable):
		status, resp.Code = http.StatusConflict, "unavailable"
		resp.Product = unavailable.ProductTitle
	case errors.Is(err, domain.ErrItemNotInCart):
		status, resp.Code = http.StatusConflict, "item_not_in_cart"
	case domain.IsNotFound(err):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrDuplicateCode):
		status, resp.Code = http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrConflict):
		status, resp.Code = http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		status, resp.Code = http.StatusGatewayTimeout, "timeout"
		resp.Message = "request timed out"
	default:
		log.Error("request failed", "error", err)
		status, resp.Code = http.StatusInternalServerError, "internal_error"
		resp.Message = "internal server error"
	}

	respondJSON(w, status, resp)
}

// decodeJSON reads a JSON body into v. An empty body is accepted when
// optional is set, leaving v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return false
	}
	respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	return false
}
