// internal/service/order/domain/cart.go
package domain

import "github.com/pkg/errors"

// MaxAmount bounds every line total and the subtotal, in the smallest currency
// unit. Discounts, shipping and point values stay well inside int64 below it.
const MaxAmount int64 = 1e15

// LineKey identifies a cart line. Two adds with the same key merge quantities.
type LineKey struct {
	ProductID string `json:"product_id"`
	Image     string `json:"image,omitempty"`
	Size      string `json:"size,omitempty"`
}

// CartLine is one entry of a cart. UnitPrice is the price snapshotted when the
// product was added, in the smallest currency unit.
type CartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Size      string `json:"size,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Image: l.Image, Size: l.Size}
}

// Total is unit price times quantity.
func (l CartLine) Total() int64 {
	return l.UnitPrice * l.Quantity
}

func (l CartLine) validate() error {
	if l.ProductID == "" {
		return errors.Wrap(ErrInvalidCartLine, "product id is required")
	}
	if l.Quantity < 1 {
		return errors.Wrapf(ErrInvalidCartLine, "quantity must be at least 1, got %d", l.Quantity)
	}
	if l.UnitPrice < 0 {
		return errors.Wrapf(ErrInvalidCartLine, "unit price must not be negative, got %d", l.UnitPrice)
	}
	if !withinAmount(l.UnitPrice, l.Quantity) {
		return errors.Wrapf(ErrInvalidCartLine, "line %s exceeds the maximum amount", l.ProductID)
	}
	return nil
}

// withinAmount reports whether price × qty stays at or below MaxAmount.
func withinAmount(price, qty int64) bool {
	if price == 0 {
		return qty <= MaxAmount
	}
	return qty <= MaxAmount/price
}

// Cart is the session-owned cart aggregate. Lines keep insertion order.
type Cart struct {
	lines []CartLine
}

// NewCart builds a cart from existing lines, merging duplicates by key.
func NewCart(lines ...CartLine) (*Cart, error) {
	c := &Cart{}
	for _, l := range lines {
		if err := c.Add(l); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add appends a line, or increases the quantity of the line with the same key.
// The unit price of an existing line is kept: it was snapshotted at first add.
func (c *Cart) Add(line CartLine) error {
	if err := line.validate(); err != nil {
		return err
	}
	for i := range c.lines {
		if c.lines[i].Key() == line.Key() {
			merged := c.lines[i]
			merged.Quantity += line.Quantity
			if err := c.fits(i, merged); err != nil {
				return err
			}
			c.lines[i] = merged
			return nil
		}
	}
	if err := c.fits(-1, line); err != nil {
		return err
	}
	c.lines = append(c.lines, line)
	return nil
}

// fits checks that putting line at index i (or appending it when i < 0) keeps
// the line and the subtotal within MaxAmount.
func (c *Cart) fits(i int, line CartLine) error {
	if line.Quantity < 1 || !withinAmount(line.UnitPrice, line.Quantity) {
		return errors.Wrapf(ErrInvalidCartLine, "line %s exceeds the maximum amount", line.ProductID)
	}
	sum := line.Total()
	for j, l := range c.lines {
		if j == i {
			continue
		}
		sum += l.Total()
		if sum > MaxAmount {
			return errors.Wrap(ErrInvalidCartLine, "cart subtotal exceeds the maximum amount")
		}
	}
	return nil
}

// SetQuantity changes the quantity of a line. A quantity below 1 removes it.
// It reports false when the line is missing or the new quantity would push the
// cart past MaxAmount.
func (c *Cart) SetQuantity(key LineKey, qty int64) bool {
	for i := range c.lines {
		if c.lines[i].Key() == key {
			if qty < 1 {
				c.lines = append(c.lines[:i], c.lines[i+1:]...)
				return true
			}
			next := c.lines[i]
			next.Quantity = qty
			if c.fits(i, next) != nil {
				return false
			}
			c.lines[i] = next
			return true
		}
	}
	return false
}

func (c *Cart) Remove(key LineKey) bool {
	return c.SetQuantity(key, 0)
}

func (c *Cart) Clear() {
	c.lines = nil
}

// Lines returns a copy of the lines.
func (c *Cart) Lines() []CartLine {
	if c == nil {
		return nil
	}
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.lines) == 0
}

// Subtotal is Σ(unit price × quantity).
func (c *Cart) Subtotal() int64 {
	if c == nil {
		return 0
	}
	var sum int64
	for _, l := range c.lines {
		sum += l.Total()
	}
	return sum
}

// ItemCount is the total quantity across lines.
func (c *Cart) ItemCount() int64 {
	if c == nil {
		return 0
	}
	var n int64
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}
