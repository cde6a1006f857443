package saga

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/domain"
)

// ValidateCartHandler rejects a placement before anything is read or written.
type ValidateCartHandler struct {
	NextHandler
}

func (h *ValidateCartHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ValidateCart")
	defer span.End()

	if orderCtx.Cart.IsEmpty() {
		span.SetStatus(codes.Error, "empty cart")
		return domain.ErrEmptyCart
	}
	span.SetAttributes(
		attribute.Int("cart.lines", len(orderCtx.Cart.Lines())),
		attribute.Int64("cart.subtotal", orderCtx.Cart.Subtotal()),
	)

	if err := validateDraft(orderCtx.Draft, orderCtx.Redemption); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid order draft")
		return err
	}

	logger.Ctx(ctx).Debug().Str("order", orderCtx.OrderID).Msg("cart validated")
	return h.executeNext(orderCtx)
}

func validateDraft(d domain.OrderDraft, r domain.Redemption) error {
	v := &domain.ValidationError{}
	if strings.TrimSpace(d.UserEmail) == "" {
		v.Add("user_email", "required")
	}
	if strings.TrimSpace(d.Address.Address) == "" || strings.TrimSpace(d.Address.City) == "" {
		v.Add("shipping_address", "address and city are required")
	}
	if d.Shipping.Zone == "" || d.Shipping.Method == "" {
		v.Add("shipping_method", "required")
	}
	if strings.TrimSpace(d.PaymentMethod) == "" {
		v.Add("payment_method", "required")
	}
	if r.Points < 0 {
		v.Add("points_used", "must not be negative")
	}
	if d.IsGuest() && r.Enabled && r.Points > 0 {
		v.Add("points_used", "guests cannot redeem points")
	}
	return v.OrNil()
}
