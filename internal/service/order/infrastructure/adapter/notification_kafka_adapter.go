package adapter

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"nexus-settlement/internal/pkg/mq"
	"nexus-settlement/internal/service/order/domain"
)

// Event types carried in the HeaderEventType header.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventReturnResolved     = "return.resolved"

	HeaderEventType = "x-event-type"
)

type messageWriter interface {
	mq.MessageWriter
	io.Closer
}

// NotificationKafkaAdapter implements port.NotificationProducer. Messages are
// keyed by order id so one order's events stay ordered.
type NotificationKafkaAdapter struct {
	writer messageWriter
}

func NewNotificationKafkaAdapter(writer messageWriter) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

func (a *NotificationKafkaAdapter) OrderPlaced(ctx context.Context, evt domain.OrderPlaced) error {
	return a.publish(ctx, EventOrderPlaced, evt.OrderID, evt)
}

func (a *NotificationKafkaAdapter) OrderStatusChanged(ctx context.Context, evt domain.OrderStatusChanged) error {
	return a.publish(ctx, EventOrderStatusChanged, evt.OrderID, evt)
}

func (a *NotificationKafkaAdapter) ReturnResolved(ctx context.Context, evt domain.ReturnResolved) error {
	return a.publish(ctx, EventReturnResolved, evt.OrderID, evt)
}

func (a *NotificationKafkaAdapter) publish(ctx context.Context, eventType, orderID string, evt any) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", eventType)
	}
	err = mq.ProduceMessage(ctx, a.writer, []byte(orderID), payload,
		kafka.Header{Key: HeaderEventType, Value: []byte(eventType)})
	return errors.Wrapf(err, "produce %s", eventType)
}

func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
