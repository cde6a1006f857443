package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"nexus-settlement/internal/pkg/mq"
	"nexus-settlement/internal/service/order/domain"
)

// HeaderNotBefore holds the RFC3339 time before which a cascade task must not run.
const HeaderNotBefore = "x-not-before"

// SchedulerKafkaAdapter implements port.CascadeScheduler by publishing delayed
// tasks. The delay grows linearly with the attempt number.
type SchedulerKafkaAdapter struct {
	writer messageWriter
	delay  time.Duration
	now    func() time.Time
}

func NewSchedulerKafkaAdapter(writer messageWriter, delay time.Duration) *SchedulerKafkaAdapter {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &SchedulerKafkaAdapter{writer: writer, delay: delay, now: time.Now}
}

func (a *SchedulerKafkaAdapter) ScheduleCascade(ctx context.Context, req domain.ReturnCascadeRequested) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal cascade task")
	}
	notBefore := a.now().Add(a.delay * time.Duration(max(req.Attempt, 1))).UTC().Format(time.RFC3339)
	err = mq.ProduceMessage(ctx, a.writer, []byte(req.OrderID), payload,
		kafka.Header{Key: HeaderNotBefore, Value: []byte(notBefore)})
	return errors.Wrapf(err, "schedule cascade for return %s", req.ReturnID)
}

// NotBefore reads HeaderNotBefore. The zero time means "run now".
func NotBefore(msg kafka.Message) time.Time {
	for _, h := range msg.Headers {
		if h.Key == HeaderNotBefore {
			t, err := time.Parse(time.RFC3339, string(h.Value))
			if err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func (a *SchedulerKafkaAdapter) Close() error {
	return a.writer.Close()
}
