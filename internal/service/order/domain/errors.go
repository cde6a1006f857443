// internal/service/order/domain/errors.go
package domain

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCartLine       = errors.New("invalid cart line")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidCoupon         = errors.New("coupon not found")
	ErrExpiredCoupon         = errors.New("coupon has expired")
	ErrCouponNotApplicable   = errors.New("coupon does not apply to this cart")
	ErrUnknownShippingMethod = errors.New("unknown shipping zone or method")
	ErrInsufficientPoints    = errors.New("insufficient loyalty points")
	ErrCustomerBlocked       = errors.New("customer account is blocked")
	ErrPriceMismatch         = errors.New("submitted amounts differ from server pricing")
	ErrOrderNotFound         = errors.New("order not found")
	ErrInvalidStatus         = errors.New("invalid order status")
	ErrProfileNotFound       = errors.New("profile not found")
	ErrConcurrentUpdate      = errors.New("row was modified concurrently")
	ErrReturnNotFound        = errors.New("return request not found")
	ErrDuplicateReturn       = errors.New("a return request already exists for this order")
	ErrReturnNotAllowed      = errors.New("order is not eligible for a return")
	ErrReturnNotOwned        = errors.New("order does not belong to the requesting customer")
	ErrReturnAlreadyResolved = errors.New("return request is already resolved")
	ErrInvalidReturnStatus   = errors.New("invalid return status")
	ErrSubmissionInFlight    = errors.New("an order submission with this key is already in progress")
	ErrDuplicateSubmission   = errors.New("idempotency key already used by another order")
	ErrPersistence           = errors.New("persistence failure")
	ErrCascadePending        = errors.New("order status cascade is pending reconciliation")
)

// ValidationError carries field-level failures. It never reaches persistence.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field failure and returns the receiver for chaining.
func (e *ValidationError) Add(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = message
	return e
}

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
