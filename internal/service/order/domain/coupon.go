// internal/service/order/domain/coupon.go
package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Coupon is issued once and read-only to this service.
type Coupon struct {
	Code            string
	DiscountPercent int64
	ExpiresAt       time.Time

	// Rule is an optional CEL expression evaluated against CouponFacts.
	// An empty rule always applies.
	Rule string
}

// NormalizeCouponCode makes codes case-insensitive.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsExpired reports whether the coupon expired strictly before now.
func (c *Coupon) IsExpired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// Check validates the coupon against the clock.
func (c *Coupon) Check(now time.Time) error {
	if c == nil {
		return ErrInvalidCoupon
	}
	if c.IsExpired(now) {
		return errors.Wrapf(ErrExpiredCoupon, "coupon %s expired at %s", c.Code, c.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// Discount is subtotal × percent / 100 rounded half up. Percent is clamped to 0..100.
func (c *Coupon) Discount(subtotal int64) int64 {
	if c == nil || subtotal <= 0 {
		return 0
	}
	pct := c.DiscountPercent
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return (subtotal*pct + 50) / 100
}

// CouponFacts is what a coupon rule can see about the cart being priced.
type CouponFacts struct {
	Subtotal   int64    `json:"subtotal"`
	ItemCount  int64    `json:"item_count"`
	UserID     string   `json:"user_id"`
	ProductIDs []string `json:"product_ids"`
}

// FactsFor builds the rule facts for a cart.
func FactsFor(cart *Cart, userID string) CouponFacts {
	lines := cart.Lines()
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return CouponFacts{
		Subtotal:   cart.Subtotal(),
		ItemCount:  cart.ItemCount(),
		UserID:     userID,
		ProductIDs: ids,
	}
}

// RuleEngine evaluates a coupon rule. Implemented in infrastructure.
type RuleEngine interface {
	Evaluate(rule string, facts CouponFacts) (bool, error)
}
