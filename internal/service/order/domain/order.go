// internal/service/order/domain/order.go
package domain

import "time"

// Address is the shipping address snapshot stored on the order.
type Address struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Phone      string `json:"phone"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// OrderItem is a snapshot of a cart line at placement. It is never re-read from the catalog.
type OrderItem struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Price     int64  `json:"price"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Variant   string `json:"variant,omitempty"`
	Size      string `json:"size,omitempty"`
}

// Order is the aggregate root of a placed order.
type Order struct {
	ID        string
	UserID    string // empty for guests
	UserEmail string
	Items     []OrderItem

	ShippingAddress Address
	ShippingZone    Zone
	ShippingMethod  Method
	PaymentMethod   string

	Subtotal       int64
	CouponCode     string
	CouponDiscount int64
	PointsDiscount int64
	PointsUsed     int64
	PointsEarned   int64
	ShippingCost   int64
	Total          int64

	Status         Status
	TrackingNumber string
	TrackingURL    string
	Metadata       map[string]any
	IdempotencyKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderDraft is what the customer chose at checkout, apart from the cart itself.
type OrderDraft struct {
	UserID         string
	UserEmail      string
	Address        Address
	Shipping       ShippingSelection
	PaymentMethod  string
	Metadata       map[string]any
	IdempotencyKey string
}

// IsGuest reports whether the draft has no authenticated customer.
func (d OrderDraft) IsGuest() bool {
	return d.UserID == ""
}

// NewOrder builds an order in its initial status from a priced cart.
func NewOrder(id string, d OrderDraft, cart *Cart, b PriceBreakdown, now time.Time) (*Order, error) {
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	o := &Order{
		ID:              id,
		UserID:          d.UserID,
		UserEmail:       d.UserEmail,
		ShippingAddress: d.Address,
		ShippingZone:    d.Shipping.Zone,
		ShippingMethod:  d.Shipping.Method,
		PaymentMethod:   d.PaymentMethod,
		Subtotal:        b.Subtotal,
		CouponCode:      b.CouponCode,
		CouponDiscount:  b.CouponDiscount,
		PointsDiscount:  b.PointsDiscount,
		PointsUsed:      b.PointsUsed,
		PointsEarned:    b.PointsEarned,
		ShippingCost:    b.ShippingCost,
		Total:           b.GrandTotal,
		Status:          StatusInProgress,
		Metadata:        d.Metadata,
		IdempotencyKey:  d.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, l := range cart.Lines() {
		o.Items = append(o.Items, OrderItem{
			OrderID:   id,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
			Name:      l.Name,
			Image:     l.Image,
			Size:      l.Size,
		})
	}
	return o, nil
}

// ItemsSubtotal recomputes the subtotal from the stored items.
func (o *Order) ItemsSubtotal() int64 {
	var sum int64
	for _, it := range o.Items {
		sum += it.Price * it.Quantity
	}
	return sum
}

// RecomputeTotal derives the total from the items and the stored discounts.
func (o *Order) RecomputeTotal() int64 {
	return max(0, o.ItemsSubtotal()-o.CouponDiscount-o.PointsDiscount) + o.ShippingCost
}

// Consistent reports whether the stored total matches its own items.
func (o *Order) Consistent() bool {
	return o.RecomputeTotal() == o.Total
}

// TouchesLoyalty reports whether placing the order must write the loyalty balance.
func (o *Order) TouchesLoyalty() bool {
	return o.UserID != "" && (o.PointsUsed > 0 || o.PointsEarned > 0)
}

// StatusUpdate is a staff edit. Nil fields are left unchanged.
type StatusUpdate struct {
	Status         *Status
	TrackingNumber *string
	TrackingURL    *string
}

// Apply mutates the order and reports the status transition it performed.
// Any status may follow any other; the transition kind tells callers which it was.
func (o *Order) Apply(u StatusUpdate, now time.Time) (Transition, error) {
	t := Transition{From: o.Status, To: o.Status, Kind: TransitionUnchanged}
	if u.Status != nil {
		if !u.Status.Valid() {
			return t, ErrInvalidStatus
		}
		t = Classify(o.Status, *u.Status)
		o.Status = *u.Status
	}
	if u.TrackingNumber != nil {
		o.TrackingNumber = *u.TrackingNumber
	}
	if u.TrackingURL != nil {
		o.TrackingURL = *u.TrackingURL
	}
	o.UpdatedAt = now
	return t, nil
}

// Breakdown rebuilds the pricing figures stored on the order.
func (o *Order) Breakdown() PriceBreakdown {
	payable := o.Subtotal - o.CouponDiscount
	return PriceBreakdown{
		Subtotal:            o.Subtotal,
		CouponCode:          o.CouponCode,
		CouponDiscount:      o.CouponDiscount,
		PayableAfterCoupon:  payable,
		PointsDiscount:      o.PointsDiscount,
		PointsUsed:          o.PointsUsed,
		TotalBeforeShipping: max(0, payable-o.PointsDiscount),
		ShippingCost:        o.ShippingCost,
		GrandTotal:          o.Total,
		PointsEarned:        o.PointsEarned,
	}
}
