package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/mq"
)

// LogDeadLetter records a dead-lettered cascade task. The drift it leaves is
// picked up by reconciliation.
func LogDeadLetter(ctx context.Context, msg kafka.Message) error {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", headers[mq.HeaderOriginalTopic]).
		Str("original_partition", headers[mq.HeaderOriginalPartition]).
		Str("original_offset", headers[mq.HeaderOriginalOffset]).
		Str("exception_fqcn", headers[mq.HeaderExceptionFqcn]).
		Str("exception_message", headers[mq.HeaderExceptionMessage]).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("dead letter message received")
	return nil
}
