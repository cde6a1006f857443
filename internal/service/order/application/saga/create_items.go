package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreateItemsHandler persists one item per cart line under the new order.
type CreateItemsHandler struct {
	NextHandler
}

func (h *CreateItemsHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.CreateItems")
	defer span.End()

	order := orderCtx.Order
	if err := orderCtx.Orders.AddItems(ctx, order.ID, order.Items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save order items")
		return errors.Wrapf(err, "create items of order %s", order.ID)
	}
	span.SetAttributes(attribute.Int("order.items", len(order.Items)))
	return h.executeNext(orderCtx)
}
