package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/service/order/application"
	"nexus-settlement/internal/service/order/domain"
	"nexus-settlement/internal/service/order/infrastructure/adapter"
)

// CascadeHandler turns return-cascade-retry messages into ApplyCascade calls.
type CascadeHandler struct {
	returns *application.ReturnApplicationService
	now     func() time.Time
}

func NewCascadeHandler(returns *application.ReturnApplicationService) *CascadeHandler {
	return &CascadeHandler{returns: returns, now: time.Now}
}

// Handle waits until the task is due, then applies it. Undecodable messages
// are returned as errors so they reach the dead-letter topic.
func (h *CascadeHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var evt domain.ReturnCascadeRequested
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return errors.Wrap(err, "decode cascade task")
	}

	if wait := adapter.NotBefore(msg).Sub(h.now()); wait > 0 {
		logger.Ctx(ctx).Debug().Str("return", evt.ReturnID).Dur("wait", wait).Msg("cascade task not due yet")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
	return h.returns.ApplyCascade(ctx, &evt)
}
