package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AdjustLoyaltyHandler applies balance − used + earned for authenticated customers.
type AdjustLoyaltyHandler struct {
	NextHandler
}

func (h *AdjustLoyaltyHandler) Handle(orderCtx *OrderContext) error {
	order := orderCtx.Order
	if !order.TouchesLoyalty() {
		return h.executeNext(orderCtx)
	}

	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.AdjustLoyalty")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", order.UserID),
		attribute.Int64("loyalty.used", order.PointsUsed),
		attribute.Int64("loyalty.earned", order.PointsEarned),
	)

	balance, err := orderCtx.Ledger.Adjust(ctx, order.UserID, order.PointsUsed, order.PointsEarned)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loyalty adjustment failed")
		return err
	}
	orderCtx.Balance = balance
	span.SetAttributes(attribute.Int64("loyalty.balance", balance))
	return h.executeNext(orderCtx)
}
