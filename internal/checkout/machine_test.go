package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-settlement/internal/service/order/domain"
)

type fakePlacer struct {
	mu      sync.Mutex
	keys    []string
	reqs    []PlacementRequest
	err     error
	entered chan struct{}
	release chan struct{}
}

func (p *fakePlacer) PlaceOrder(_ context.Context, key string, req PlacementRequest) (*Placement, error) {
	p.mu.Lock()
	p.keys = append(p.keys, key)
	p.reqs = append(p.reqs, req)
	err := p.err
	p.mu.Unlock()
	if p.entered != nil {
		p.entered <- struct{}{}
		<-p.release
	}
	if err != nil {
		return nil, err
	}
	return &Placement{OrderID: "o-1", Status: domain.StatusInProgress}, nil
}

func testSettings() domain.Settings {
	return domain.Settings{
		Shipping: domain.ShippingRates{
			Table: map[domain.Zone]map[domain.Method]int64{
				domain.ZoneLocal:         {domain.MethodStandard: 1500, domain.MethodExpress: 3000},
				domain.ZoneInternational: {domain.MethodAir: 9000, domain.MethodSea: 5000},
			},
			FreeThreshold: 50000,
		},
		Loyalty: domain.LoyaltyRates{EarningRate: 1000, RedemptionRate: 10},
	}
}

func validContact() domain.Address {
	return domain.Address{
		Email:     "awa@example.com",
		FirstName: "Awa",
		LastName:  "Diallo",
		Address:   "12 rue Carnot",
		City:      "Dakar",
		Phone:     "770000000",
	}
}

func newTestMachine(t *testing.T, placer OrderPlacer) *Machine {
	t.Helper()
	cart, err := domain.NewCart(domain.CartLine{ProductID: "robe", Name: "Robe", UnitPrice: 20000, Quantity: 2})
	require.NoError(t, err)
	m := NewMachine(cart, "u-1", placer)
	n := 0
	m.newKey = func() string { n++; return "key-" + string(rune('0'+n)) }
	m.UseSettings(testSettings())
	return m
}

// toPayment drives a machine through the contact and shipping steps.
func toPayment(t *testing.T, m *Machine) {
	t.Helper()
	m.SetContact(validContact())
	require.NoError(t, m.Advance(context.Background()))
	m.SelectShipping(domain.ShippingSelection{Zone: domain.ZoneLocal, Method: domain.MethodStandard})
	require.NoError(t, m.Advance(context.Background()))
	require.Equal(t, StepPayment, m.Step())
}

func TestMachine_ContactGuard(t *testing.T) {
	m := newTestMachine(t, &fakePlacer{})

	err := m.Advance(context.Background())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"email", "firstName", "lastName", "address", "city", "phone"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.Equal(t, StepContact, m.Step())

	c := validContact()
	c.Email = "not-an-email"
	m.SetContact(c)
	err = m.Advance(context.Background())
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"email": "invalid email address"}, verr.Fields)
}

func TestMachine_ShippingRequiresMethod(t *testing.T) {
	m := newTestMachine(t, &fakePlacer{})
	m.SetContact(validContact())
	require.NoError(t, m.Advance(context.Background()))

	err := m.Advance(context.Background())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "shippingMethod")
	assert.Equal(t, StepShipping, m.Step())

	m.SelectShipping(domain.ShippingSelection{Zone: domain.ZoneLocal, Method: domain.MethodSea})
	err = m.Advance(context.Background())
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "not available for this zone", verr.Fields["shippingMethod"])
}

func TestMachine_BackKeepsValues(t *testing.T) {
	m := newTestMachine(t, &fakePlacer{})
	toPayment(t, m)

	require.NoError(t, m.Back())
	assert.Equal(t, StepShipping, m.Step())
	require.NoError(t, m.Back())
	assert.Equal(t, StepContact, m.Step())
	require.NoError(t, m.Back())
	assert.Equal(t, StepContact, m.Step())
	assert.Equal(t, validContact(), m.Contact())

	// Re-advancing needs no re-entry.
	require.NoError(t, m.Advance(context.Background()))
	require.NoError(t, m.Advance(context.Background()))
	assert.Equal(t, StepPayment, m.Step())
}

func TestMachine_PaymentRequiresMethod(t *testing.T) {
	placer := &fakePlacer{}
	m := newTestMachine(t, placer)
	toPayment(t, m)

	err := m.Advance(context.Background())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "paymentMethod")
	assert.Empty(t, placer.reqs)
}

func TestMachine_ConfirmClearsCartAndRotatesKey(t *testing.T) {
	placer := &fakePlacer{}
	m := newTestMachine(t, placer)
	toPayment(t, m)
	m.SelectPayment("wave")
	firstKey := m.IdempotencyKey()

	require.NoError(t, m.Advance(context.Background()))

	assert.Equal(t, StepConfirmed, m.Step())
	assert.Equal(t, "o-1", m.Placed().OrderID)
	assert.NotEqual(t, firstKey, m.IdempotencyKey())
	require.Len(t, placer.keys, 1)
	assert.Equal(t, firstKey, placer.keys[0])

	req := placer.reqs[0]
	assert.Equal(t, "u-1", req.UserID)
	assert.Equal(t, "awa@example.com", req.UserEmail)
	assert.Len(t, req.Items, 1)
	require.NotNil(t, req.Total)
	assert.Equal(t, int64(41500), *req.Total)

	assert.ErrorIs(t, m.Back(), ErrConfirmed)
	assert.ErrorIs(t, m.Advance(context.Background()), ErrConfirmed)
}

func TestMachine_CouponLeavesTotalToServer(t *testing.T) {
	placer := &fakePlacer{}
	m := newTestMachine(t, placer)
	toPayment(t, m)
	m.SelectPayment("card")
	m.ApplyCoupon(" bienvenue10 ")

	require.NoError(t, m.Advance(context.Background()))
	assert.Equal(t, "BIENVENUE10", placer.reqs[0].CouponCode)
	assert.Nil(t, placer.reqs[0].Total)
}

func TestMachine_FailedSubmissionStaysInPayment(t *testing.T) {
	placer := &fakePlacer{err: errors.New("connection refused")}
	m := newTestMachine(t, placer)
	toPayment(t, m)
	m.SelectPayment("wave")
	key := m.IdempotencyKey()

	require.Error(t, m.Advance(context.Background()))
	assert.Equal(t, StepPayment, m.Step())
	assert.Nil(t, m.Placed())

	// The retry reuses the key so a lost answer cannot place twice.
	placer.err = nil
	require.NoError(t, m.Advance(context.Background()))
	assert.Equal(t, []string{key, key}, placer.keys)
}

func TestMachine_SubmissionInFlightBlocksResubmitAndBack(t *testing.T) {
	placer := &fakePlacer{entered: make(chan struct{}), release: make(chan struct{})}
	m := newTestMachine(t, placer)
	toPayment(t, m)
	m.SelectPayment("wave")

	done := make(chan error, 1)
	go func() { done <- m.Advance(context.Background()) }()
	<-placer.entered

	assert.ErrorIs(t, m.Advance(context.Background()), ErrSubmissionPending)
	assert.ErrorIs(t, m.Back(), ErrSubmissionPending)

	close(placer.release)
	require.NoError(t, <-done)
	assert.Equal(t, StepConfirmed, m.Step())
	assert.Len(t, placer.keys, 1)
}

func TestMachine_Quote(t *testing.T) {
	m := newTestMachine(t, &fakePlacer{})
	m.SelectShipping(domain.ShippingSelection{Zone: domain.ZoneInternational, Method: domain.MethodAir})
	m.SetRedemption(domain.Redemption{Enabled: true, Points: 100})

	b, err := m.Quote()
	require.NoError(t, err)
	assert.Equal(t, int64(40000-1000+9000), b.GrandTotal)
}
