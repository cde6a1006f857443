package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/mq"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageHandler processes one message. A returned error sends the message to
// the dead-letter topic when one is configured.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// KafkaConsumer drives a handler from a consumer group, committing after each
// message. Handlers run with the producer's trace context.
type KafkaConsumer struct {
	name    string
	reader  MessageReader
	handle  MessageHandler
	dlt     mq.MessageWriter
	backoff time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewKafkaConsumer builds a consumer. dlt may be nil.
func NewKafkaConsumer(name string, reader MessageReader, handle MessageHandler, dlt mq.MessageWriter) *KafkaConsumer {
	return &KafkaConsumer{name: name, reader: reader, handle: handle, dlt: dlt, backoff: time.Second}
}

func (c *KafkaConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("consumer", c.name).Msg("kafka consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Ctx(ctx).Error().Err(err).Str("consumer", c.name).Msg("could not fetch message, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.backoff):
				}
				continue
			}

			c.process(ctx, msg)
			if ctx.Err() != nil {
				// Interrupted mid-message; leave it for redelivery.
				return
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("consumer", c.name).Msg("failed to commit message")
			}
		}
	}()
}

func (c *KafkaConsumer) process(ctx context.Context, msg kafka.Message) {
	msgCtx := mq.ExtractTraceContext(ctx, msg)
	err := c.handle(msgCtx, msg)
	if err == nil {
		return
	}
	log := logger.Ctx(msgCtx).Error().Err(err).Str("consumer", c.name).Str("topic", msg.Topic).Int64("offset", msg.Offset)
	if c.dlt == nil {
		log.Msg("message handling failed, skipping")
		return
	}
	log.Msg("message handling failed, sending to dead-letter topic")
	if dltErr := c.deadLetter(msgCtx, msg, err); dltErr != nil {
		logger.Ctx(msgCtx).Error().Err(dltErr).Str("consumer", c.name).Msg("failed to write dead letter")
	}
}

func (c *KafkaConsumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	headers := []kafka.Header{
		{Key: mq.HeaderOriginalTopic, Value: []byte(msg.Topic)},
		{Key: mq.HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		{Key: mq.HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		{Key: mq.HeaderExceptionFqcn, Value: []byte(errorType(cause))},
		{Key: mq.HeaderExceptionMessage, Value: []byte(cause.Error())},
	}
	return errors.Wrap(mq.ProduceMessage(ctx, c.dlt, msg.Key, msg.Value, headers...), "produce dead letter")
}

// errorType names the root error's Go type.
func errorType(err error) string {
	return fmt.Sprintf("%T", errors.Cause(err))
}

// Stop cancels the fetch loop and closes the reader.
func (c *KafkaConsumer) Stop(ctx context.Context) {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if err := c.reader.Close(); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("consumer", c.name).Msg("failed to close reader")
	}
	logger.Ctx(ctx).Info().Str("consumer", c.name).Msg("kafka consumer stopped")
}
