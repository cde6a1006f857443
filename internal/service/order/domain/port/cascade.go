package port

import (
	"context"

	"nexus-settlement/internal/service/order/domain"
)

// CascadeScheduler defers a return→order status cascade that could not be
// applied in-process.
type CascadeScheduler interface {
	ScheduleCascade(ctx context.Context, req domain.ReturnCascadeRequested) error
}
