package saga

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"nexus-settlement/internal/service/order/domain"
)

// TransactionHandler runs an inner chain inside one backend transaction, then
// continues with its own successor after commit.
type TransactionHandler struct {
	NextHandler
	tx    domain.Transactor
	inner Handler
}

func NewTransactionHandler(tx domain.Transactor, inner Handler) *TransactionHandler {
	return &TransactionHandler{tx: tx, inner: inner}
}

func (h *TransactionHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Transaction")
	defer span.End()

	outer := orderCtx.Ctx
	err := h.tx.WithinTx(ctx, func(txCtx context.Context) error {
		orderCtx.Ctx = txCtx
		return h.inner.Handle(orderCtx)
	})
	orderCtx.Ctx = outer
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction rolled back")
		orderCtx.Order = nil
		return err
	}
	span.AddEvent("transaction committed")
	return h.executeNext(orderCtx)
}
