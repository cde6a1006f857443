package port

import (
	"context"

	"nexus-settlement/internal/service/order/domain"
)

// NotificationProducer hands customer-facing events to the notification
// collaborator. Delivery is not this service's concern.
type NotificationProducer interface {
	OrderPlaced(ctx context.Context, evt domain.OrderPlaced) error
	OrderStatusChanged(ctx context.Context, evt domain.OrderStatusChanged) error
	ReturnResolved(ctx context.Context, evt domain.ReturnResolved) error
}
