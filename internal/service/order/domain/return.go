// internal/service/order/domain/return.go
package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ReturnStatus is the status of a return request.
type ReturnStatus string

const (
	ReturnPending  ReturnStatus = "En attente"
	ReturnRefunded ReturnStatus = "Remboursé"
	ReturnRejected ReturnStatus = "Rejeté"
)

func (s ReturnStatus) Resolved() bool {
	return s == ReturnRefunded || s == ReturnRejected
}

// ParseReturnStatus accepts only the statuses staff can resolve to.
func ParseReturnStatus(raw string) (ReturnStatus, error) {
	s := ReturnStatus(raw)
	if !s.Resolved() {
		return "", errors.Wrapf(ErrInvalidReturnStatus, "%q", raw)
	}
	return s, nil
}

// ReturnRequest is a customer's request to return one order.
type ReturnRequest struct {
	ID        string
	OrderID   string
	UserID    string
	Reason    string
	Status    ReturnStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Returnable reports whether an order in the status may be returned.
func Returnable(s Status) bool {
	return s == StatusDelivered || s == StatusInProgress || s == StatusPending
}

// NewReturnRequest checks the customer-side preconditions. Uniqueness per order is
// the repository's job.
func NewReturnRequest(id string, order *Order, userID, reason string, now time.Time) (*ReturnRequest, error) {
	reason = strings.TrimSpace(reason)
	if v := validateReturn(userID, reason); v != nil {
		return nil, v
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID == "" || order.UserID != userID {
		return nil, errors.Wrapf(ErrReturnNotOwned, "order %s", order.ID)
	}
	if !Returnable(order.Status) {
		return nil, errors.Wrapf(ErrReturnNotAllowed, "order %s is %s", order.ID, order.Status)
	}
	return &ReturnRequest{
		ID:        id,
		OrderID:   order.ID,
		UserID:    userID,
		Reason:    reason,
		Status:    ReturnPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func validateReturn(userID, reason string) error {
	v := &ValidationError{}
	if userID == "" {
		v.Add("user_id", "required")
	}
	if reason == "" {
		v.Add("reason", "required")
	}
	return v.OrNil()
}

// Resolve moves a pending return to a terminal status.
func (r *ReturnRequest) Resolve(to ReturnStatus, now time.Time) error {
	if !to.Resolved() {
		return errors.Wrapf(ErrInvalidReturnStatus, "%q", to)
	}
	if r.Status.Resolved() {
		return errors.Wrapf(ErrReturnAlreadyResolved, "return %s is %s", r.ID, r.Status)
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// Drift is a refunded return whose order did not follow.
type Drift struct {
	ReturnID    string `json:"return_id"`
	OrderID     string `json:"order_id"`
	OrderStatus Status `json:"order_status"`
}

// DriftOf reports whether the pair breaks "refunded return implies refunded order".
// A missing order counts as drift.
func DriftOf(r *ReturnRequest, o *Order) (Drift, bool) {
	if r.Status != ReturnRefunded {
		return Drift{}, false
	}
	d := Drift{ReturnID: r.ID, OrderID: r.OrderID}
	if o == nil {
		return d, true
	}
	d.OrderStatus = o.Status
	return d, o.Status != StatusRefunded
}
