package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-settlement/internal/pkg/mq"
)

type chanReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *chanReader) Close() error {
	r.closed = true
	return nil
}

func (r *chanReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type sliceWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *sliceWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *sliceWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestKafkaConsumer_FailedMessagesGoToDeadLetter(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafka.Message, 2)}
	dlt := &sliceWriter{}
	handled := make(chan int64, 2)
	c := NewKafkaConsumer("test", reader, func(_ context.Context, msg kafka.Message) error {
		handled <- msg.Offset
		if string(msg.Value) == "bad" {
			return errors.Wrap(errors.New("undecodable"), "decode cascade task")
		}
		return nil
	}, dlt)

	c.Start(context.Background())
	reader.msgs <- kafka.Message{Topic: "return-cascade-retry", Partition: 0, Offset: 7, Key: []byte("o-1"), Value: []byte("good")}
	reader.msgs <- kafka.Message{Topic: "return-cascade-retry", Partition: 0, Offset: 8, Key: []byte("o-2"), Value: []byte("bad")}
	<-handled
	<-handled

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	c.Stop(context.Background())
	assert.True(t, reader.closed)
	assert.Equal(t, []int64{7, 8}, reader.commits(), "failed messages are committed once dead-lettered")

	dead := dlt.written()
	require.Len(t, dead, 1)
	assert.Equal(t, "o-2", string(dead[0].Key))
	assert.Equal(t, "bad", string(dead[0].Value))
	headers := map[string]string{}
	for _, h := range dead[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "return-cascade-retry", headers[mq.HeaderOriginalTopic])
	assert.Equal(t, "8", headers[mq.HeaderOriginalOffset])
	assert.Equal(t, "*errors.fundamental", headers[mq.HeaderExceptionFqcn])
	assert.Contains(t, headers[mq.HeaderExceptionMessage], "undecodable")
}

func TestKafkaConsumer_StopBeforeMessages(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafka.Message)}
	c := NewKafkaConsumer("idle", reader, func(context.Context, kafka.Message) error { return nil }, nil)

	c.Start(context.Background())
	c.Stop(context.Background())
	assert.True(t, reader.closed)
	assert.Empty(t, reader.commits())
}
