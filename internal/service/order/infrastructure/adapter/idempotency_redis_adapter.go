package adapter

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"nexus-settlement/internal/pkg/redis"
	"nexus-settlement/internal/service/order/domain/port"
)

const (
	reserveScriptName  = "idempotency_reserve"
	completeScriptName = "idempotency_complete"
	releaseScriptName  = "idempotency_release"

	pendingMarker = "pending"
)

// IdempotencyRedisAdapter implements port.IdempotencyStore. A key holds
// "pending" while its placement runs and the order id once it completed.
type IdempotencyRedisAdapter struct {
	redisClient *redis.Client
	pendingTTL  time.Duration
	doneTTL     time.Duration
}

// NewIdempotencyRedisAdapter loads the scripts up front.
func NewIdempotencyRedisAdapter(ctx context.Context, redisClient *redis.Client, pendingTTL, doneTTL time.Duration) (*IdempotencyRedisAdapter, error) {
	scripts := map[string]string{
		reserveScriptName:  reserveScript,
		completeScriptName: completeScript,
		releaseScriptName:  releaseScript,
	}
	for name, body := range scripts {
		if err := redisClient.LoadScriptFromContent(ctx, name, body); err != nil {
			return nil, errors.Wrapf(err, "load %s script", name)
		}
	}
	return &IdempotencyRedisAdapter{redisClient: redisClient, pendingTTL: pendingTTL, doneTTL: doneTTL}, nil
}

func idempotencyKey(key string) string {
	return "checkout:idem:{" + key + "}"
}

func (a *IdempotencyRedisAdapter) Reserve(ctx context.Context, key string) (port.ReservationResult, string, error) {
	res, err := a.redisClient.RunScript(ctx, reserveScriptName, []string{idempotencyKey(key)}, pendingMarker, a.pendingTTL.Milliseconds())
	if err != nil {
		return 0, "", errors.Wrap(err, "reserve idempotency key")
	}
	reply, ok := res.([]any)
	if !ok || len(reply) != 2 {
		return 0, "", errors.Errorf("unexpected reserve reply %T", res)
	}
	code, _ := reply[0].(int64)
	value, _ := reply[1].(string)
	switch code {
	case 1:
		return port.ReservationAcquired, "", nil
	case 0:
		return port.ReservationInFlight, "", nil
	case 2:
		return port.ReservationCompleted, value, nil
	default:
		return 0, "", errors.Errorf("unknown reserve code %d", code)
	}
}

func (a *IdempotencyRedisAdapter) Complete(ctx context.Context, key, orderID string) error {
	_, err := a.redisClient.RunScript(ctx, completeScriptName, []string{idempotencyKey(key)}, orderID, a.doneTTL.Milliseconds())
	return errors.Wrap(err, "complete idempotency key")
}

func (a *IdempotencyRedisAdapter) Release(ctx context.Context, key string) error {
	_, err := a.redisClient.RunScript(ctx, releaseScriptName, []string{idempotencyKey(key)}, pendingMarker)
	return errors.Wrap(err, "release idempotency key")
}

// KEYS[1]: the submission key. ARGV[1]: pending marker. ARGV[2]: ttl in ms.
// Returns {1, ""} when acquired, {0, ""} while another submission runs and
// {2, orderId} once it completed.
const reserveScript = `
local current = redis.call('get', KEYS[1])
if not current then
    redis.call('set', KEYS[1], ARGV[1], 'PX', ARGV[2])
    return {1, ''}
end
if current == ARGV[1] then
    return {0, ''}
end
return {2, current}
`

// KEYS[1]: the submission key. ARGV[1]: order id. ARGV[2]: ttl in ms.
const completeScript = `
redis.call('set', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`

// Only a pending key is released; a completed one keeps its order id.
const releaseScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`
