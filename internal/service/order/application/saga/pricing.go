package saga

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/domain"
)

// PriceOrderHandler reprices the cart on the server and checks the client's figures.
type PriceOrderHandler struct {
	NextHandler
}

func (h *PriceOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.PriceOrder")
	defer span.End()

	fail := func(err error, msg string) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return err
	}

	settings, err := orderCtx.SettingsRepo.Load(ctx)
	if err != nil {
		return fail(errors.Wrap(err, "load settings"), "settings unavailable")
	}
	orderCtx.Settings = settings

	if !orderCtx.Draft.IsGuest() {
		profile, err := orderCtx.Profiles.FindByID(ctx, orderCtx.Draft.UserID)
		if err != nil {
			return fail(err, "profile lookup failed")
		}
		if profile.Blocked {
			return fail(errors.Wrapf(domain.ErrCustomerBlocked, "user %s", profile.ID), "customer blocked")
		}
		if orderCtx.Redemption.Enabled {
			if err := profile.CanRedeem(orderCtx.Redemption.Points); err != nil {
				return fail(err, "insufficient points")
			}
		}
		orderCtx.Profile = profile
	}

	facts := domain.FactsFor(orderCtx.Cart, orderCtx.Draft.UserID)
	resolved, err := ResolveCoupon(ctx, orderCtx.Coupons, orderCtx.Rules, orderCtx.CouponCode, facts)
	if err != nil {
		return fail(err, "coupon lookup failed")
	}

	b, err := domain.Quote(domain.QuoteInput{
		Cart:        orderCtx.Cart,
		Coupon:      resolved.Coupon,
		CouponIssue: resolved.Issue,
		Redemption:  orderCtx.Redemption,
		Shipping:    orderCtx.Draft.Shipping,
		Now:         orderCtx.Now,
	}, settings)
	if err != nil {
		return fail(err, "pricing failed")
	}
	if b.CouponIssue != nil {
		logger.Ctx(ctx).Warn().Err(b.CouponIssue).Str("coupon", orderCtx.CouponCode).Msg("coupon dropped, pricing without it")
		span.AddEvent("coupon dropped", trace.WithAttributes(attribute.String("coupon.issue", b.CouponIssue.Error())))
	}
	if err := checkClaimed(orderCtx.Claimed, b); err != nil {
		return fail(err, "client pricing differs")
	}

	orderCtx.Breakdown = b
	span.SetAttributes(
		attribute.Int64("order.subtotal", b.Subtotal),
		attribute.Int64("order.total", b.GrandTotal),
		attribute.Int64("order.points_used", b.PointsUsed),
	)
	return h.executeNext(orderCtx)
}

// CouponResolution is a looked-up coupon, or the reason it cannot apply.
type CouponResolution struct {
	Coupon *domain.Coupon
	Issue  error
}

// ResolveCoupon looks a code up and runs its rule. A coupon that cannot apply
// comes back as an Issue; the error is reserved for lookup failures.
func ResolveCoupon(ctx context.Context, coupons domain.CouponRepository, rules domain.RuleEngine, code string, facts domain.CouponFacts) (CouponResolution, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return CouponResolution{}, nil
	}
	c, err := coupons.FindByCode(ctx, code)
	if errors.Is(err, domain.ErrInvalidCoupon) {
		return CouponResolution{Issue: err}, nil
	}
	if err != nil {
		return CouponResolution{}, err
	}
	if c.Rule == "" || rules == nil {
		return CouponResolution{Coupon: c}, nil
	}
	ok, err := rules.Evaluate(c.Rule, facts)
	if err != nil {
		return CouponResolution{Issue: errors.Wrapf(domain.ErrCouponNotApplicable, "rule error: %v", err)}, nil
	}
	if !ok {
		return CouponResolution{Issue: errors.Wrapf(domain.ErrCouponNotApplicable, "coupon %s", code)}, nil
	}
	return CouponResolution{Coupon: c}, nil
}

func checkClaimed(c Claimed, b domain.PriceBreakdown) error {
	check := func(name string, claimed *int64, computed int64) error {
		if claimed != nil && *claimed != computed {
			return errors.Wrapf(domain.ErrPriceMismatch, "%s: submitted %d, computed %d", name, *claimed, computed)
		}
		return nil
	}
	if err := check("total", c.Total, b.GrandTotal); err != nil {
		return err
	}
	if err := check("shipping_cost", c.ShippingCost, b.ShippingCost); err != nil {
		return err
	}
	if err := check("points_used", c.PointsUsed, b.PointsUsed); err != nil {
		return err
	}
	return check("points_earned", c.PointsEarned, b.PointsEarned)
}
