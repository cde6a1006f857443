package interfaces

import (
	"time"

	"nexus-settlement/internal/service/order/application"
	"nexus-settlement/internal/service/order/domain"
)

type placeOrderBody struct {
	UserID          string                   `json:"user_id"`
	UserEmail       string                   `json:"user_email"`
	Items           []domain.CartLine        `json:"items"`
	ShippingAddress domain.Address           `json:"shipping_address"`
	Shipping        domain.ShippingSelection `json:"shipping"`
	PaymentMethod   string                   `json:"payment_method"`
	CouponCode      string                   `json:"coupon_code"`
	Redemption      domain.Redemption        `json:"redemption"`
	Metadata        map[string]any           `json:"metadata"`

	Total        *int64 `json:"total"`
	ShippingCost *int64 `json:"shipping_cost"`
	PointsUsed   *int64 `json:"points_used"`
	PointsEarned *int64 `json:"points_earned"`
}

func (b placeOrderBody) request(idempotencyKey string) *application.PlaceOrderRequest {
	return &application.PlaceOrderRequest{
		IdempotencyKey:  idempotencyKey,
		UserID:          b.UserID,
		UserEmail:       b.UserEmail,
		Items:           b.Items,
		ShippingAddress: b.ShippingAddress,
		Shipping:        b.Shipping,
		PaymentMethod:   b.PaymentMethod,
		CouponCode:      b.CouponCode,
		Redemption:      b.Redemption,
		Metadata:        b.Metadata,
		Total:           b.Total,
		ShippingCost:    b.ShippingCost,
		PointsUsed:      b.PointsUsed,
		PointsEarned:    b.PointsEarned,
	}
}

type quoteBody struct {
	UserID     string                   `json:"user_id"`
	Items      []domain.CartLine        `json:"items"`
	CouponCode string                   `json:"coupon_code"`
	Redemption domain.Redemption        `json:"redemption"`
	Shipping   domain.ShippingSelection `json:"shipping"`
}

// QuoteResponse is a breakdown plus the reason a coupon was not applied.
type QuoteResponse struct {
	domain.PriceBreakdown
	CouponError string `json:"coupon_error,omitempty"`
}

type updateOrderBody struct {
	Status         *string `json:"status"`
	TrackingNumber *string `json:"tracking_number"`
	TrackingURL    *string `json:"tracking_url"`
}

type createReturnBody struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
}

type resolveReturnBody struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
}

// OrderResponse is the wire form of an order.
type OrderResponse struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id,omitempty"`
	UserEmail       string             `json:"user_email"`
	Items           []domain.OrderItem `json:"items"`
	ShippingAddress domain.Address     `json:"shipping_address"`
	ShippingZone    domain.Zone        `json:"shipping_zone"`
	ShippingMethod  domain.Method      `json:"shipping_method"`
	PaymentMethod   string             `json:"payment_method"`
	Subtotal        int64              `json:"subtotal"`
	CouponCode      string             `json:"coupon_code,omitempty"`
	CouponDiscount  int64              `json:"coupon_discount"`
	PointsDiscount  int64              `json:"points_discount"`
	PointsUsed      int64              `json:"points_used"`
	PointsEarned    int64              `json:"points_earned"`
	ShippingCost    int64              `json:"shipping_cost"`
	Total           int64              `json:"total"`
	Status          domain.Status      `json:"status"`
	TrackingNumber  string             `json:"tracking_number,omitempty"`
	TrackingURL     string             `json:"tracking_url,omitempty"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := o.Items
	if items == nil {
		items = []domain.OrderItem{}
	}
	return OrderResponse{
		ID: o.ID, UserID: o.UserID, UserEmail: o.UserEmail, Items: items,
		ShippingAddress: o.ShippingAddress, ShippingZone: o.ShippingZone, ShippingMethod: o.ShippingMethod,
		PaymentMethod: o.PaymentMethod, Subtotal: o.Subtotal, CouponCode: o.CouponCode,
		CouponDiscount: o.CouponDiscount, PointsDiscount: o.PointsDiscount, PointsUsed: o.PointsUsed,
		PointsEarned: o.PointsEarned, ShippingCost: o.ShippingCost, Total: o.Total, Status: o.Status,
		TrackingNumber: o.TrackingNumber, TrackingURL: o.TrackingURL, Metadata: o.Metadata,
		CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}
}

// PlaceOrderResponse answers POST /orders.
type PlaceOrderResponse struct {
	Order     OrderResponse         `json:"order"`
	Breakdown domain.PriceBreakdown `json:"breakdown"`
	Replayed  bool                  `json:"replayed"`
}

// ReturnResponse is the wire form of a return request.
type ReturnResponse struct {
	ID             string              `json:"id"`
	OrderID        string              `json:"order_id"`
	UserID         string              `json:"user_id"`
	Reason         string              `json:"reason"`
	Status         domain.ReturnStatus `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	CascadePending bool                `json:"cascade_pending,omitempty"`
}

func toReturnResponse(r *domain.ReturnRequest) ReturnResponse {
	return ReturnResponse{
		ID: r.ID, OrderID: r.OrderID, UserID: r.UserID, Reason: r.Reason,
		Status: r.Status, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}
