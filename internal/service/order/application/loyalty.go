// internal/service/order/application/loyalty.go
package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/metrics"
	"nexus-settlement/internal/service/order/domain"
)

const defaultLoyaltyAttempts = 3

// LoyaltyLedger keeps each customer's point balance as one counter guarded by
// a version compare-and-swap.
type LoyaltyLedger struct {
	profiles    domain.ProfileRepository
	tracer      trace.Tracer
	maxAttempts int
}

func NewLoyaltyLedger(profiles domain.ProfileRepository, tracer trace.Tracer, maxAttempts int) *LoyaltyLedger {
	if maxAttempts < 1 {
		maxAttempts = defaultLoyaltyAttempts
	}
	return &LoyaltyLedger{profiles: profiles, tracer: tracer, maxAttempts: maxAttempts}
}

// Adjust writes balance − used + earned and returns the new balance.
func (l *LoyaltyLedger) Adjust(ctx context.Context, userID string, used, earned int64) (int64, error) {
	ctx, span := l.tracer.Start(ctx, "app.LoyaltyLedger.Adjust")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	for attempt := 1; ; attempt++ {
		profile, err := l.profiles.FindByID(ctx, userID)
		if err != nil {
			return 0, err
		}
		next, err := profile.Adjust(used, earned)
		if err != nil {
			return 0, err
		}
		err = l.profiles.UpdatePoints(ctx, userID, next, profile.Version)
		if err == nil {
			span.SetAttributes(attribute.Int("loyalty.attempts", attempt))
			return next, nil
		}
		if !errors.Is(err, domain.ErrConcurrentUpdate) || attempt >= l.maxAttempts {
			return 0, err
		}
		metrics.LoyaltyConflicts.Inc()
		logger.Ctx(ctx).Warn().Str("user", userID).Int("attempt", attempt).Msg("loyalty balance changed underneath, retrying")
	}
}

// Balance reads the current balance and tier.
func (l *LoyaltyLedger) Balance(ctx context.Context, userID string) (*LoyaltyView, error) {
	profile, err := l.profiles.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &LoyaltyView{UserID: profile.ID, Points: profile.Points, Tier: profile.Tier}, nil
}
