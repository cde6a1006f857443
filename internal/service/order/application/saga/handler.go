package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/domain"
	"nexus-settlement/internal/service/order/domain/port"
)

// Claimed holds the amounts the client computed. Nil means "not sent".
type Claimed struct {
	Total        *int64
	ShippingCost *int64
	PointsUsed   *int64
	PointsEarned *int64
}

// LoyaltyAdjuster writes a balance change. Implemented by application.LoyaltyLedger.
type LoyaltyAdjuster interface {
	Adjust(ctx context.Context, userID string, used, earned int64) (int64, error)
}

// OrderContext carries one placement through the chain.
type OrderContext struct {
	Ctx    context.Context
	Tracer trace.Tracer
	Now    time.Time

	// input
	OrderID    string
	Draft      domain.OrderDraft
	Cart       *domain.Cart
	CouponCode string
	Redemption domain.Redemption
	Claimed    Claimed

	// filled in by the steps
	Settings  domain.Settings
	Profile   *domain.Profile
	Breakdown domain.PriceBreakdown
	Order     *domain.Order
	Balance   int64

	Orders       domain.OrderRepository
	Profiles     domain.ProfileRepository
	Coupons      domain.CouponRepository
	SettingsRepo domain.SettingsRepository
	Rules        domain.RuleEngine
	Ledger       LoyaltyAdjuster
	Notifier     port.NotificationProducer

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation registers an undo step. Compensations run last-in first-out.
func (c *OrderContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

func (c *OrderContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().Str("order", c.OrderID).Int("count", len(c.compensations)).Msg("executing compensations")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next != nil {
		return h.next.Handle(orderCtx)
	}
	return nil
}
