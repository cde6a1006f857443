package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace/noop"

	"nexus-settlement/internal/service/order/domain"
	"nexus-settlement/internal/service/order/domain/port"
	"nexus-settlement/internal/service/order/infrastructure"
	"nexus-settlement/internal/service/order/infrastructure/adapter"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func defaultSettings() domain.Settings {
	return domain.Settings{
		Shipping: domain.ShippingRates{
			Table: map[domain.Zone]map[domain.Method]int64{
				domain.ZoneLocal:         {domain.MethodStandard: 1500, domain.MethodExpress: 3000},
				domain.ZoneNational:      {domain.MethodStandard: 2500, domain.MethodExpress: 4500},
				domain.ZoneInternational: {domain.MethodAir: 9000, domain.MethodSea: 5000},
			},
			FreeThreshold: 50000,
		},
		Loyalty: domain.LoyaltyRates{EarningRate: 1000, RedemptionRate: 10},
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	placed  []domain.OrderPlaced
	changed []domain.OrderStatusChanged
	resolve []domain.ReturnResolved
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, evt domain.OrderPlaced) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed = append(n.placed, evt)
	return nil
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, evt domain.OrderStatusChanged) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, evt)
	return nil
}

func (n *recordingNotifier) ReturnResolved(_ context.Context, evt domain.ReturnResolved) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolve = append(n.resolve, evt)
	return nil
}

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []domain.ReturnCascadeRequested
}

func (s *recordingScheduler) ScheduleCascade(_ context.Context, req domain.ReturnCascadeRequested) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, req)
	return nil
}

// memoryIdempotency mirrors the Redis adapter's states.
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string // "" while pending
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}}
}

func (m *memoryIdempotency) Reserve(_ context.Context, key string) (port.ReservationResult, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	switch {
	case !ok:
		m.keys[key] = ""
		return port.ReservationAcquired, "", nil
	case v == "":
		return port.ReservationInFlight, "", nil
	default:
		return port.ReservationCompleted, v, nil
	}
}

func (m *memoryIdempotency) Complete(_ context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] == "" {
		delete(m.keys, key)
	}
	return nil
}

// flakyOrders fails Update while failUpdate is set, and the next idempotency
// key lookup once failLookup is set.
type flakyOrders struct {
	domain.OrderRepository
	failUpdate atomic.Bool
	failLookup atomic.Bool
}

func (f *flakyOrders) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	if f.failLookup.CompareAndSwap(true, false) {
		return nil, errors.Wrap(domain.ErrPersistence, "db down")
	}
	return f.OrderRepository.FindByIdempotencyKey(ctx, key)
}

func (f *flakyOrders) Update(ctx context.Context, o *domain.Order) error {
	if f.failUpdate.Load() {
		return errors.Wrap(domain.ErrPersistence, "connection reset")
	}
	return f.OrderRepository.Update(ctx, o)
}

// conflictingProfiles loses the version race the first conflicts times.
type conflictingProfiles struct {
	domain.ProfileRepository
	conflicts atomic.Int32
}

func (c *conflictingProfiles) UpdatePoints(ctx context.Context, id string, points, expectedVersion int64) error {
	if c.conflicts.Add(-1) >= 0 {
		return errors.Wrapf(domain.ErrConcurrentUpdate, "profile %s", id)
	}
	return c.ProfileRepository.UpdatePoints(ctx, id, points, expectedVersion)
}

type fixture struct {
	store     *infrastructure.MemoryStore
	orders    *flakyOrders
	profiles  *conflictingProfiles
	notifier  *recordingNotifier
	scheduler *recordingScheduler
	idem      *memoryIdempotency
	ledger    *LoyaltyLedger
	svc       *OrderApplicationService
	returns   *ReturnApplicationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tracer := noop.NewTracerProvider().Tracer("test")

	f := &fixture{
		store:     infrastructure.NewMemoryStore(),
		notifier:  &recordingNotifier{},
		scheduler: &recordingScheduler{},
		idem:      newMemoryIdempotency(),
	}
	f.orders = &flakyOrders{OrderRepository: f.store.Orders()}
	f.profiles = &conflictingProfiles{ProfileRepository: f.store.Profiles()}

	f.store.SeedProfile(domain.Profile{ID: "u-1", Email: "u1@example.com", Points: 500, Tier: domain.TierArgent})
	f.store.SeedProfile(domain.Profile{ID: "u-blocked", Points: 500, Blocked: true})
	f.store.SeedCoupon(domain.Coupon{Code: "BIENVENUE10", DiscountPercent: 10, ExpiresAt: fixedNow.AddDate(1, 0, 0)})
	f.store.SeedCoupon(domain.Coupon{Code: "GROS20", DiscountPercent: 20, ExpiresAt: fixedNow.AddDate(1, 0, 0), Rule: "subtotal >= 20000"})

	repos := Repositories{
		Orders:   f.orders,
		Returns:  f.store.Returns(),
		Profiles: f.profiles,
		Coupons:  f.store.Coupons(),
		Settings: infrastructure.StaticSettingsRepository{Settings: defaultSettings},
		Tx:       f.store,
	}
	f.ledger = NewLoyaltyLedger(f.profiles, tracer, 3)
	f.svc = NewOrderApplicationService(repos, 5*time.Second, tracer, stubRules{}, f.ledger, f.notifier, f.idem)
	f.svc.now = func() time.Time { return fixedNow }

	f.returns = NewReturnApplicationService(f.store.Returns(), f.orders, adapter.NewMemoryLocker(), f.notifier, f.scheduler, tracer,
		CascadePolicy{Attempts: 2, Backoff: time.Millisecond, MaxScheduled: 3})
	f.returns.now = func() time.Time { return fixedNow }

	return f
}

// stubRules understands the one rule the fixtures use.
type stubRules struct{}

func (stubRules) Evaluate(rule string, facts domain.CouponFacts) (bool, error) {
	if rule == "subtotal >= 20000" {
		return facts.Subtotal >= 20000, nil
	}
	return false, errors.Errorf("unsupported rule %q", rule)
}

func validRequest() *PlaceOrderRequest {
	return &PlaceOrderRequest{
		UserID:    "u-1",
		UserEmail: "u1@example.com",
		Items: []domain.CartLine{
			{ProductID: "robe-lin", Name: "Robe en lin", Size: "M", UnitPrice: 20000, Quantity: 2},
		},
		ShippingAddress: domain.Address{Email: "u1@example.com", FirstName: "Awa", LastName: "Diallo", Address: "12 rue Carnot", City: "Dakar", Phone: "770000000"},
		Shipping:        domain.ShippingSelection{Zone: domain.ZoneLocal, Method: domain.MethodStandard},
		PaymentMethod:   "wave",
	}
}

func points(t *testing.T, f *fixture, userID string) int64 {
	t.Helper()
	p, err := f.store.Profiles().FindByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("load profile %s: %v", userID, err)
	}
	return p.Points
}
