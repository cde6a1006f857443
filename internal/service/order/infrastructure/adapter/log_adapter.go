package adapter

import (
	"context"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/domain"
)

// LogNotifier implements port.NotificationProducer by logging. Used when no
// Kafka brokers are configured.
type LogNotifier struct{}

func (LogNotifier) OrderPlaced(ctx context.Context, evt domain.OrderPlaced) error {
	logger.Ctx(ctx).Info().Str("event", EventOrderPlaced).Str("order", evt.OrderID).Int64("total", evt.Total).Msg("notification")
	return nil
}

func (LogNotifier) OrderStatusChanged(ctx context.Context, evt domain.OrderStatusChanged) error {
	logger.Ctx(ctx).Info().Str("event", EventOrderStatusChanged).Str("order", evt.OrderID).Str("to", string(evt.To)).Msg("notification")
	return nil
}

func (LogNotifier) ReturnResolved(ctx context.Context, evt domain.ReturnResolved) error {
	logger.Ctx(ctx).Info().Str("event", EventReturnResolved).Str("return", evt.ReturnID).Str("status", string(evt.Status)).Msg("notification")
	return nil
}

// LogScheduler implements port.CascadeScheduler without a broker: the task is
// logged and the drift is left for reconciliation.
type LogScheduler struct{}

func (LogScheduler) ScheduleCascade(ctx context.Context, req domain.ReturnCascadeRequested) error {
	logger.Ctx(ctx).Warn().Str("return", req.ReturnID).Str("order", req.OrderID).Int("attempt", req.Attempt).
		Msg("no scheduler configured; cascade left for reconciliation")
	return nil
}
