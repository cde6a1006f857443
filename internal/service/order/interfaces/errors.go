package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/domain"
	"nexus-settlement/internal/service/order/domain/port"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorTable = []errorMapping{
	{domain.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
	{domain.ErrInvalidCartLine, http.StatusUnprocessableEntity, "invalid_cart_line"},
	{domain.ErrUnknownShippingMethod, http.StatusUnprocessableEntity, "unknown_shipping_method"},
	{domain.ErrInvalidStatus, http.StatusUnprocessableEntity, "invalid_status"},
	{domain.ErrInvalidReturnStatus, http.StatusUnprocessableEntity, "invalid_return_status"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domain.ErrReturnNotFound, http.StatusNotFound, "return_not_found"},
	{domain.ErrProfileNotFound, http.StatusNotFound, "profile_not_found"},
	{domain.ErrCustomerBlocked, http.StatusForbidden, "customer_blocked"},
	{domain.ErrReturnNotOwned, http.StatusForbidden, "return_not_owned"},
	{domain.ErrPriceMismatch, http.StatusConflict, "price_mismatch"},
	{domain.ErrInsufficientPoints, http.StatusConflict, "insufficient_points"},
	{domain.ErrDuplicateReturn, http.StatusConflict, "duplicate_return"},
	{domain.ErrReturnNotAllowed, http.StatusConflict, "return_not_allowed"},
	{domain.ErrReturnAlreadyResolved, http.StatusConflict, "return_already_resolved"},
	{domain.ErrSubmissionInFlight, http.StatusConflict, "submission_in_flight"},
	{domain.ErrDuplicateSubmission, http.StatusConflict, "submission_in_flight"},
	{domain.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
	{port.ErrLockTimeout, http.StatusServiceUnavailable, "busy"},
}

// writeError maps a use-case error to its HTTP answer. Unknown errors are
// logged and answered with a generic 500 so internals do not leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Message: verr.Error(), Code: "validation_failed", Fields: verr.Fields})
		return
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, ErrorResponse{Message: err.Error(), Code: m.code})
			return
		}
	}
	logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "internal error", Code: "internal"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "malformed JSON: "+err.Error())
	}
	return nil
}
