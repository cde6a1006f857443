// Package checkout is the client-side checkout flow: it gates progress from
// contact details to a confirmed order.
package checkout

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"nexus-settlement/internal/service/order/domain"
)

// Step is a checkout state.
type Step string

const (
	StepContact   Step = "contact"
	StepShipping  Step = "shipping"
	StepPayment   Step = "payment"
	StepConfirmed Step = "confirmed"
)

var (
	ErrSubmissionPending = errors.New("order submission already in progress")
	ErrConfirmed         = errors.New("checkout is already confirmed")
)

// PlacementRequest is what the machine submits on confirmation.
type PlacementRequest struct {
	UserID          string                   `json:"user_id,omitempty"`
	UserEmail       string                   `json:"user_email"`
	Items           []domain.CartLine        `json:"items"`
	ShippingAddress domain.Address           `json:"shipping_address"`
	Shipping        domain.ShippingSelection `json:"shipping"`
	PaymentMethod   string                   `json:"payment_method"`
	CouponCode      string                   `json:"coupon_code,omitempty"`
	Redemption      domain.Redemption        `json:"redemption"`
	Total           *int64                   `json:"total,omitempty"`
}

// Placement is the confirmed order as the server reported it.
type Placement struct {
	OrderID   string                `json:"-"`
	Status    domain.Status         `json:"-"`
	Breakdown domain.PriceBreakdown `json:"breakdown"`
	Replayed  bool                  `json:"replayed"`
}

// OrderPlacer submits an order. The key identifies the submission so a retry
// after a lost answer does not place a second order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, idempotencyKey string, req PlacementRequest) (*Placement, error)
}

// Machine is one customer's checkout. Values entered on a step survive moving
// back to it.
type Machine struct {
	mu sync.Mutex

	step       Step
	cart       *domain.Cart
	userID     string
	contact    domain.Address
	shipping   domain.ShippingSelection
	payment    string
	coupon     string
	redemption domain.Redemption
	settings   *domain.Settings

	placer  OrderPlacer
	key     string
	pending bool
	placed  *Placement

	newKey func() string
	now    func() time.Time
}

// NewMachine starts a checkout on cart. userID is empty for guests.
func NewMachine(cart *domain.Cart, userID string, placer OrderPlacer) *Machine {
	return &Machine{
		step:   StepContact,
		cart:   cart,
		userID: userID,
		placer: placer,
		key:    uuid.NewString(),
		newKey: uuid.NewString,
		now:    time.Now,
	}
}

func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// IdempotencyKey is the key the next submission will carry.
func (m *Machine) IdempotencyKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key
}

// Placed returns the confirmed order, or nil before confirmation.
func (m *Machine) Placed() *Placement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placed
}

func (m *Machine) Contact() domain.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contact
}

func (m *Machine) SetContact(a domain.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contact = a
}

func (m *Machine) SelectShipping(sel domain.ShippingSelection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipping = sel
}

func (m *Machine) SelectPayment(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payment = method
}

func (m *Machine) ApplyCoupon(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupon = domain.NormalizeCouponCode(code)
}

func (m *Machine) SetRedemption(r domain.Redemption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redemption = r
}

// UseSettings sets the rates used for display pricing and for checking the
// shipping selection.
func (m *Machine) UseSettings(s domain.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
}

// Quote prices the cart for display. The coupon is only priced by the server,
// so the figures here exclude it.
func (m *Machine) Quote() (domain.PriceBreakdown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quoteLocked()
}

func (m *Machine) quoteLocked() (domain.PriceBreakdown, error) {
	if m.settings == nil {
		return domain.PriceBreakdown{}, errors.New("settings not loaded")
	}
	return domain.Quote(domain.QuoteInput{
		Cart:       m.cart,
		Redemption: m.redemption,
		Shipping:   m.shipping,
		Now:        m.now(),
	}, *m.settings)
}

// Back moves one step backward. It never clears entered values.
func (m *Machine) Back() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.step {
	case StepShipping:
		m.step = StepContact
	case StepPayment:
		if m.pending {
			return ErrSubmissionPending
		}
		m.step = StepShipping
	case StepConfirmed:
		return ErrConfirmed
	}
	return nil
}

// Advance runs the guard of the current step and moves forward. From Payment
// it places the order; on failure the machine stays in Payment.
func (m *Machine) Advance(ctx context.Context) error {
	m.mu.Lock()
	switch m.step {
	case StepContact:
		defer m.mu.Unlock()
		if err := validateContact(m.contact).OrNil(); err != nil {
			return err
		}
		m.step = StepShipping
		return nil
	case StepShipping:
		defer m.mu.Unlock()
		if err := m.validateShipping(); err != nil {
			return err
		}
		m.step = StepPayment
		return nil
	case StepPayment:
		return m.submit(ctx)
	default:
		m.mu.Unlock()
		return ErrConfirmed
	}
}

// submit is entered with m.mu held and releases it while the placer runs.
func (m *Machine) submit(ctx context.Context) error {
	if m.pending {
		m.mu.Unlock()
		return ErrSubmissionPending
	}
	if strings.TrimSpace(m.payment) == "" {
		m.mu.Unlock()
		return domain.NewValidationError("paymentMethod", "select a payment method")
	}
	if m.cart.IsEmpty() {
		m.mu.Unlock()
		return domain.ErrEmptyCart
	}
	req := m.requestLocked()
	key := m.key
	m.pending = true
	m.mu.Unlock()

	placed, err := m.placer.PlaceOrder(ctx, key, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = false
	if err != nil {
		return err
	}
	m.placed = placed
	m.step = StepConfirmed
	m.cart.Clear()
	m.key = m.newKey()
	return nil
}

func (m *Machine) requestLocked() PlacementRequest {
	req := PlacementRequest{
		UserID:          m.userID,
		UserEmail:       m.contact.Email,
		Items:           m.cart.Lines(),
		ShippingAddress: m.contact,
		Shipping:        m.shipping,
		PaymentMethod:   m.payment,
		CouponCode:      m.coupon,
		Redemption:      m.redemption,
	}
	// Without a coupon the displayed total must be what the server charges.
	if m.coupon == "" {
		if b, err := m.quoteLocked(); err == nil {
			total := b.GrandTotal
			req.Total = &total
		}
	}
	return req
}

func validateContact(a domain.Address) *domain.ValidationError {
	v := &domain.ValidationError{}
	required := []struct {
		field, value string
	}{
		{"email", a.Email},
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"address", a.Address},
		{"city", a.City},
		{"phone", a.Phone},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			v.Add(f.field, "required")
		}
	}
	if email := strings.TrimSpace(a.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
			v.Add("email", "invalid email address")
		}
	}
	return v
}

func (m *Machine) validateShipping() error {
	if m.shipping.Method == "" {
		return domain.NewValidationError("shippingMethod", "select a shipping method")
	}
	if m.settings != nil {
		if _, err := m.settings.Shipping.Fee(m.shipping); err != nil {
			return domain.NewValidationError("shippingMethod", "not available for this zone")
		}
	}
	return nil
}
