package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-settlement/internal/service/order/domain"
)

type memoryWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNotificationKafkaAdapter(t *testing.T) {
	w := &memoryWriter{}
	a := NewNotificationKafkaAdapter(w)
	ctx := context.Background()

	require.NoError(t, a.OrderPlaced(ctx, domain.OrderPlaced{OrderID: "o-1", Total: 37500}))
	require.NoError(t, a.OrderStatusChanged(ctx, domain.OrderStatusChanged{OrderID: "o-1", To: domain.StatusShipped}))
	require.NoError(t, a.ReturnResolved(ctx, domain.ReturnResolved{ReturnID: "r-1", OrderID: "o-1", Status: domain.ReturnRefunded}))

	require.Len(t, w.msgs, 3)
	for _, m := range w.msgs {
		assert.Equal(t, "o-1", string(m.Key))
	}
	assert.Equal(t, EventOrderPlaced, header(w.msgs[0], HeaderEventType))
	assert.Equal(t, EventOrderStatusChanged, header(w.msgs[1], HeaderEventType))
	assert.Equal(t, EventReturnResolved, header(w.msgs[2], HeaderEventType))

	var placed domain.OrderPlaced
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &placed))
	assert.Equal(t, int64(37500), placed.Total)

	require.NoError(t, a.Close())
	assert.True(t, w.closed)
}

func TestSchedulerKafkaAdapter_DelayGrowsWithAttempt(t *testing.T) {
	w := &memoryWriter{}
	a := NewSchedulerKafkaAdapter(w, 10*time.Second)
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	require.NoError(t, a.ScheduleCascade(context.Background(), domain.ReturnCascadeRequested{ReturnID: "r-1", OrderID: "o-1", Attempt: 3}))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "o-1", string(w.msgs[0].Key))
	assert.Equal(t, now.Add(30*time.Second), NotBefore(w.msgs[0]))

	var task domain.ReturnCascadeRequested
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &task))
	assert.Equal(t, 3, task.Attempt)
}

func TestNotBefore_MissingOrMalformed(t *testing.T) {
	assert.True(t, NotBefore(kafka.Message{}).IsZero())
	assert.True(t, NotBefore(kafka.Message{Headers: []kafka.Header{{Key: HeaderNotBefore, Value: []byte("soon")}}}).IsZero())
}
