// internal/service/order/application/dto.go
package application

import "nexus-settlement/internal/service/order/domain"

// PlaceOrderRequest is the input of the placement use case.
type PlaceOrderRequest struct {
	IdempotencyKey string

	UserID          string
	UserEmail       string
	Items           []domain.CartLine
	ShippingAddress domain.Address
	Shipping        domain.ShippingSelection
	PaymentMethod   string
	CouponCode      string
	Redemption      domain.Redemption
	Metadata        map[string]any

	// Amounts the client computed. Each one sent must match the server's pricing.
	Total        *int64
	ShippingCost *int64
	PointsUsed   *int64
	PointsEarned *int64
}

func (r *PlaceOrderRequest) draft() domain.OrderDraft {
	return domain.OrderDraft{
		UserID:         r.UserID,
		UserEmail:      r.UserEmail,
		Address:        r.ShippingAddress,
		Shipping:       r.Shipping,
		PaymentMethod:  r.PaymentMethod,
		Metadata:       r.Metadata,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// PlaceOrderResult is the output of the placement use case.
type PlaceOrderResult struct {
	Order     *domain.Order
	Breakdown domain.PriceBreakdown
	// Replayed is set when the idempotency key had already produced this order.
	Replayed bool
}

// QuoteRequest prices a cart without writing anything.
type QuoteRequest struct {
	UserID     string
	Items      []domain.CartLine
	CouponCode string
	Redemption domain.Redemption
	Shipping   domain.ShippingSelection
}

// UpdateOrderRequest is a staff edit of status and tracking fields.
type UpdateOrderRequest struct {
	Status         *string
	TrackingNumber *string
	TrackingURL    *string
}

// TrackingView is what the customer-facing tracking page shows.
type TrackingView struct {
	OrderID        string        `json:"order_id"`
	Status         domain.Status `json:"status"`
	Step           int           `json:"step"`
	TrackingNumber string        `json:"tracking_number,omitempty"`
	TrackingURL    string        `json:"tracking_url,omitempty"`
}

type CreateReturnRequest struct {
	OrderID string
	UserID  string
	Reason  string
}

type ResolveReturnRequest struct {
	Status string
	// OrderID is optional; when sent it must be the return's order.
	OrderID string
}

type ResolveReturnResult struct {
	Return *domain.ReturnRequest
	// CascadePending is set when the order could not be marked refunded yet.
	CascadePending bool
}

// RepairReport summarises a reconciliation repair run.
type RepairReport struct {
	Checked  int            `json:"checked"`
	Repaired int            `json:"repaired"`
	Failed   []domain.Drift `json:"failed"`
}

type LoyaltyView struct {
	UserID string      `json:"user_id"`
	Points int64       `json:"points"`
	Tier   domain.Tier `json:"tier"`
}
