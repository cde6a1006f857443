package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/domain"
)

// CreateOrderHandler persists the order row in its initial status.
type CreateOrderHandler struct {
	NextHandler
}

func (h *CreateOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.CreateOrder")
	defer span.End()

	order, err := domain.NewOrder(orderCtx.OrderID, orderCtx.Draft, orderCtx.Cart, orderCtx.Breakdown, orderCtx.Now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cannot build order")
		return err
	}
	if err := orderCtx.Orders.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save order")
		return errors.Wrapf(err, "create order %s", order.ID)
	}
	orderCtx.Order = order

	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.status", string(order.Status)))
	logger.Ctx(ctx).Info().Str("order", order.ID).Int64("total", order.Total).Msg("order row created")
	return h.executeNext(orderCtx)
}
