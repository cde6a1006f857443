// internal/service/order/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/metrics"
	"nexus-settlement/internal/service/order/application/saga"
	"nexus-settlement/internal/service/order/domain"
	"nexus-settlement/internal/service/order/domain/port"
)

// Repositories groups the persistence ports the use cases need.
type Repositories struct {
	Orders   domain.OrderRepository
	Returns  domain.ReturnRepository
	Profiles domain.ProfileRepository
	Coupons  domain.CouponRepository
	Settings domain.SettingsRepository
	Tx       domain.Transactor
}

// OrderApplicationService orchestrates placement and the order lifecycle.
type OrderApplicationService struct {
	repos             Repositories
	processingTimeout time.Duration
	tracer            trace.Tracer

	rules    domain.RuleEngine
	ledger   *LoyaltyLedger
	notifier port.NotificationProducer
	idem     port.IdempotencyStore

	now   func() time.Time
	newID func() string
}

func NewOrderApplicationService(repos Repositories, processingTimeout time.Duration, tracer trace.Tracer, rules domain.RuleEngine, ledger *LoyaltyLedger, notifier port.NotificationProducer, idem port.IdempotencyStore) *OrderApplicationService {
	return &OrderApplicationService{
		repos: repos, processingTimeout: processingTimeout, tracer: tracer,
		rules: rules, ledger: ledger, notifier: notifier, idem: idem,
		now: time.Now, newID: uuid.NewString,
	}
}

// PlaceOrder reprices the cart, then writes the order, its items and the
// loyalty adjustment in one transaction.
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.PlaceOrder")
	defer span.End()
	start := time.Now()
	defer func() { metrics.PlacementDuration.Observe(time.Since(start).Seconds()) }()

	fail := func(err error, outcome string) (*PlaceOrderResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		metrics.OrdersPlaced.WithLabelValues(outcome).Inc()
		return nil, err
	}

	cart, err := domain.NewCart(req.Items...)
	if err != nil {
		return fail(err, "invalid_cart")
	}
	if cart.IsEmpty() {
		return fail(domain.ErrEmptyCart, "empty_cart")
	}

	processingCtx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()

	orderCtx := &saga.OrderContext{
		Ctx:          processingCtx,
		Tracer:       s.tracer,
		Now:          s.now(),
		OrderID:      s.newID(),
		Draft:        req.draft(),
		Cart:         cart,
		CouponCode:   req.CouponCode,
		Redemption:   req.Redemption,
		Claimed:      saga.Claimed{Total: req.Total, ShippingCost: req.ShippingCost, PointsUsed: req.PointsUsed, PointsEarned: req.PointsEarned},
		Orders:       s.repos.Orders,
		Profiles:     s.repos.Profiles,
		Coupons:      s.repos.Coupons,
		SettingsRepo: s.repos.Settings,
		Rules:        s.rules,
		Ledger:       s.ledger,
		Notifier:     s.notifier,
	}
	span.SetAttributes(attribute.String("order.id", orderCtx.OrderID), attribute.String("user.id", req.UserID))

	if req.IdempotencyKey != "" {
		replay, err := s.reserve(processingCtx, orderCtx, req.IdempotencyKey)
		if err != nil {
			orderCtx.TriggerCompensation(context.WithoutCancel(ctx))
			return fail(err, "rejected")
		}
		if replay != nil {
			metrics.OrdersPlaced.WithLabelValues("replayed").Inc()
			return replay, nil
		}
	}

	if err := s.buildChain().Handle(orderCtx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", orderCtx.OrderID).Msg("order placement failed, compensating")
		orderCtx.TriggerCompensation(context.WithoutCancel(ctx))
		if errors.Is(err, domain.ErrDuplicateSubmission) {
			// A concurrent submission with the same key committed first.
			if replay, lookupErr := s.lookupKey(ctx, req.IdempotencyKey); lookupErr == nil && replay != nil {
				metrics.OrdersPlaced.WithLabelValues("replayed").Inc()
				return replay, nil
			}
			err = errors.Wrap(domain.ErrSubmissionInFlight, err.Error())
		}
		return fail(err, "failed")
	}

	if req.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.Complete(ctx, req.IdempotencyKey, orderCtx.Order.ID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", req.IdempotencyKey).Msg("failed to record idempotency key; the order row still carries it")
		}
	}

	metrics.OrdersPlaced.WithLabelValues("placed").Inc()
	logger.Ctx(ctx).Info().Str("order", orderCtx.Order.ID).Int64("total", orderCtx.Order.Total).Msg("order placed")
	return &PlaceOrderResult{Order: orderCtx.Order, Breakdown: orderCtx.Breakdown}, nil
}

// reserve claims the submission key. It returns a result when the key already
// produced an order. Without the Redis store the unique key column on orders is
// the only guard.
func (s *OrderApplicationService) reserve(ctx context.Context, orderCtx *saga.OrderContext, key string) (*PlaceOrderResult, error) {
	if s.idem == nil {
		return s.lookupKey(ctx, key)
	}
	res, orderID, err := s.idem.Reserve(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrPersistence, "reserve idempotency key: %v", err)
	}
	switch res {
	case port.ReservationInFlight:
		return nil, domain.ErrSubmissionInFlight
	case port.ReservationCompleted:
		return s.replay(ctx, orderID)
	}

	orderCtx.AddCompensation(func(ctx context.Context) {
		if err := s.idem.Release(ctx, key); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("key", key).Msg("failed to release idempotency key")
		}
	})

	// The cache may have lost a key whose order committed.
	return s.lookupKey(ctx, key)
}

// lookupKey replays the order stored under key, if any.
func (s *OrderApplicationService) lookupKey(ctx context.Context, key string) (*PlaceOrderResult, error) {
	existing, err := s.repos.Orders.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.idem != nil {
		if err := s.idem.Complete(ctx, key, existing.ID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to record idempotency key")
		}
	}
	return &PlaceOrderResult{Order: existing, Breakdown: existing.Breakdown(), Replayed: true}, nil
}

func (s *OrderApplicationService) replay(ctx context.Context, orderID string) (*PlaceOrderResult, error) {
	order, err := s.repos.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &PlaceOrderResult{Order: order, Breakdown: order.Breakdown(), Replayed: true}, nil
}

func (s *OrderApplicationService) buildChain() saga.Handler {
	inTx := new(saga.CreateOrderHandler)
	inTx.
		SetNext(new(saga.CreateItemsHandler)).
		SetNext(new(saga.AdjustLoyaltyHandler))

	orderPlacementChain := new(saga.ValidateCartHandler)
	orderPlacementChain.
		SetNext(new(saga.PriceOrderHandler)).
		SetNext(saga.NewTransactionHandler(s.repos.Tx, inTx)).
		SetNext(new(saga.NotificationHandler))

	return orderPlacementChain
}

// Quote prices a cart with the same rules placement uses. Nothing is written.
func (s *OrderApplicationService) Quote(ctx context.Context, req *QuoteRequest) (domain.PriceBreakdown, error) {
	ctx, span := s.tracer.Start(ctx, "app.Quote")
	defer span.End()

	cart, err := domain.NewCart(req.Items...)
	if err != nil {
		return domain.PriceBreakdown{}, err
	}
	settings, err := s.repos.Settings.Load(ctx)
	if err != nil {
		return domain.PriceBreakdown{}, err
	}
	resolved, err := saga.ResolveCoupon(ctx, s.repos.Coupons, s.rules, req.CouponCode, domain.FactsFor(cart, req.UserID))
	if err != nil {
		return domain.PriceBreakdown{}, err
	}
	b, err := domain.Quote(domain.QuoteInput{
		Cart:        cart,
		Coupon:      resolved.Coupon,
		CouponIssue: resolved.Issue,
		Redemption:  req.Redemption,
		Shipping:    req.Shipping,
		Now:         s.now(),
	}, settings)
	if err != nil {
		span.RecordError(err)
		return domain.PriceBreakdown{}, err
	}
	return b, nil
}

// Settings returns the effective shipping and loyalty settings.
func (s *OrderApplicationService) Settings(ctx context.Context) (domain.Settings, error) {
	return s.repos.Settings.Load(ctx)
}

func (s *OrderApplicationService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrder")
	defer span.End()
	return s.repos.Orders.FindByID(ctx, id)
}

func (s *OrderApplicationService) ListOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListOrders")
	defer span.End()
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "required")
	}
	return s.repos.Orders.ListByUser(ctx, userID)
}

// Track maps the order status to the customer-facing progress indicator.
func (s *OrderApplicationService) Track(ctx context.Context, id string) (*TrackingView, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TrackingView{
		OrderID:        order.ID,
		Status:         order.Status,
		Step:           domain.TrackingStep(order.Status),
		TrackingNumber: order.TrackingNumber,
		TrackingURL:    order.TrackingURL,
	}, nil
}

// UpdateOrder applies a staff edit. Every status change is allowed; backward and
// lateral ones are logged as warnings.
func (s *OrderApplicationService) UpdateOrder(ctx context.Context, id string, req *UpdateOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	upd := domain.StatusUpdate{TrackingNumber: req.TrackingNumber, TrackingURL: req.TrackingURL}
	if req.Status != nil {
		st, err := domain.ParseStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		upd.Status = &st
	}

	order, err := s.repos.Orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := order.Apply(upd, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repos.Orders.Update(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update order")
		return nil, err
	}

	s.recordTransition(ctx, order, t)
	return order, nil
}

func (s *OrderApplicationService) recordTransition(ctx context.Context, order *domain.Order, t domain.Transition) {
	metrics.StatusTransitions.WithLabelValues(string(t.Kind), string(t.To)).Inc()
	if !t.Changed() {
		return
	}

	evt := logger.Ctx(ctx).Info()
	if t.Kind == domain.TransitionBackward || t.Kind == domain.TransitionLateral {
		evt = logger.Ctx(ctx).Warn()
	}
	evt.Str("order", order.ID).Str("from", string(t.From)).Str("to", string(t.To)).Str("kind", string(t.Kind)).Msg("order status changed")

	if !t.Notify() {
		return
	}
	err := s.notifier.OrderStatusChanged(ctx, domain.OrderStatusChanged{
		OrderID:        order.ID,
		UserEmail:      order.UserEmail,
		From:           t.From,
		To:             t.To,
		TrackingNumber: order.TrackingNumber,
		TrackingURL:    order.TrackingURL,
		At:             order.UpdatedAt,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("failed to publish order.status_changed")
	}
}

// DeleteOrder removes the order with its items and return. It cannot be undone.
func (s *OrderApplicationService) DeleteOrder(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "app.DeleteOrder")
	defer span.End()

	if err := s.repos.Orders.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}
	logger.Ctx(ctx).Warn().Str("order", id).Msg("order deleted by staff")
	return nil
}
