package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/domain"
)

// NotificationHandler publishes order.placed after commit. A failure here is
// logged and never fails the placement.
type NotificationHandler struct {
	NextHandler
}

func (h *NotificationHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Notification")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.topic", "notifications"),
	)

	order := orderCtx.Order
	err := orderCtx.Notifier.OrderPlaced(ctx, domain.OrderPlaced{
		OrderID:      order.ID,
		UserID:       order.UserID,
		UserEmail:    order.UserEmail,
		Total:        order.Total,
		PointsUsed:   order.PointsUsed,
		PointsEarned: order.PointsEarned,
		PlacedAt:     order.CreatedAt,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("failed to publish order.placed")
		span.RecordError(err)
	}

	return h.executeNext(orderCtx)
}
