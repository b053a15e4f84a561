package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Warn("failed to encode response body")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// validationErrors — ошибки входных данных, транслируемые в 400.
var validationErrors = []error{
	domain.ErrCustomerEmailRequired,
	domain.ErrCurrencyRequired,
	domain.ErrCurrencyMismatch,
	domain.ErrItemsRequired,
	domain.ErrAmountNegative,
	domain.ErrItemQtyInvalid,
	domain.ErrItemPriceInvalid,
	domain.ErrLineTotalMismatch,
	domain.ErrAmountMismatch,
	domain.ErrProductNameRequired,
	domain.ErrPriceNegative,
	domain.ErrVariantKeyRequired,
	domain.ErrVariantKeyDuplicate,
	domain.ErrSizeUnknown,
	domain.ErrSizeDuplicate,
	domain.ErrStockNegative,
	domain.ErrThresholdNegative,
	domain.ErrIdempotencyKeyRequired,
}

// classifyError отображает доменную ошибку в HTTP-статус и машинный код.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrVariantNotFound),
		errors.Is(err, domain.ErrSizeNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"

	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"

	case domain.IsVersionConflict(err),
		errors.Is(err, domain.ErrOrderNumberConflict):
		return http.StatusConflict, "conflict"

	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusConflict, "idempotency_mismatch"
	}

	for _, verr := range validationErrors {
		if errors.Is(err, verr) {
			return http.StatusBadRequest, "validation_error"
		}
	}

	return http.StatusInternalServerError, "internal_error"
}
