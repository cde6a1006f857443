// internal/service/order/domain/pricing.go
package domain

import "time"

// Redemption is the customer's request to convert points into a discount.
type Redemption struct {
	Enabled bool  `json:"enabled"`
	Points  int64 `json:"points"`
}

// QuoteInput is everything the calculator needs. Coupon must already be looked up;
// CouponIssue carries the reason a requested coupon could not be found or applied.
type QuoteInput struct {
	Cart        *Cart
	Coupon      *Coupon
	CouponIssue error
	Redemption  Redemption
	Shipping    ShippingSelection
	Now         time.Time
}

// PriceBreakdown is the result of pricing a cart. All amounts are non-negative.
type PriceBreakdown struct {
	Subtotal            int64  `json:"subtotal"`
	CouponCode          string `json:"coupon_code,omitempty"`
	CouponDiscount      int64  `json:"coupon_discount"`
	PayableAfterCoupon  int64  `json:"amount_payable_after_coupon"`
	PointsDiscount      int64  `json:"points_discount"`
	PointsUsed          int64  `json:"points_used"`
	TotalBeforeShipping int64  `json:"total_before_shipping"`
	ShippingCost        int64  `json:"shipping_cost"`
	GrandTotal          int64  `json:"grand_total"`
	PointsEarned        int64  `json:"points_earned"`

	// CouponIssue explains why a requested coupon was not applied. Pricing
	// falls back to "no coupon" instead of failing.
	CouponIssue error `json:"-"`
}

// Quote prices a cart. It only fails when the shipping selection is not in the
// rate table; coupon problems degrade to no discount.
func Quote(in QuoteInput, s Settings) (PriceBreakdown, error) {
	var b PriceBreakdown
	b.Subtotal = in.Cart.Subtotal()

	b.CouponIssue = in.CouponIssue
	if in.Coupon != nil && b.CouponIssue == nil {
		if err := in.Coupon.Check(in.Now); err != nil {
			b.CouponIssue = err
		} else {
			b.CouponCode = NormalizeCouponCode(in.Coupon.Code)
			b.CouponDiscount = min(in.Coupon.Discount(b.Subtotal), b.Subtotal)
		}
	}
	b.PayableAfterCoupon = b.Subtotal - b.CouponDiscount

	if in.Redemption.Enabled && in.Redemption.Points > 0 && s.Loyalty.RedemptionRate > 0 {
		requested := b.PayableAfterCoupon
		// Anything above payable/rate+1 points is clamped anyway; skip the multiply.
		if in.Redemption.Points <= b.PayableAfterCoupon/s.Loyalty.RedemptionRate+1 {
			requested = in.Redemption.Points * s.Loyalty.RedemptionRate
		}
		b.PointsDiscount = min(requested, b.PayableAfterCoupon)
		b.PointsUsed = ceilDiv(b.PointsDiscount, s.Loyalty.RedemptionRate)
	}
	b.TotalBeforeShipping = max(0, b.PayableAfterCoupon-b.PointsDiscount)

	shipping, err := s.Shipping.Cost(in.Shipping, b.Subtotal)
	if err != nil {
		return PriceBreakdown{}, err
	}
	b.ShippingCost = shipping
	b.GrandTotal = b.TotalBeforeShipping + b.ShippingCost
	b.PointsEarned = PointsEarned(b.GrandTotal, s.Loyalty)
	return b, nil
}

// PointsEarned is floor(total / earning rate). A non-positive rate earns nothing.
func PointsEarned(total int64, r LoyaltyRates) int64 {
	if r.EarningRate <= 0 || total <= 0 {
		return 0
	}
	return total / r.EarningRate
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
