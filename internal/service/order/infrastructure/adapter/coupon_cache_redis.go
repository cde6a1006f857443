package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"nexus-settlement/internal/pkg/logger"
	"nexus-settlement/internal/pkg/redis"
	"nexus-settlement/internal/service/order/domain"
)

// unknownCoupon is cached for codes the store does not know.
const unknownCoupon = "-"

// CachedCouponRepository reads coupons through Redis. Misses on the same code
// share one store lookup; unknown codes are cached too. Cache failures fall
// back to the store.
type CachedCouponRepository struct {
	next        domain.CouponRepository
	redisClient *redis.Client
	ttl         time.Duration
	group       singleflight.Group
}

func NewCachedCouponRepository(next domain.CouponRepository, redisClient *redis.Client, ttl time.Duration) *CachedCouponRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedCouponRepository{next: next, redisClient: redisClient, ttl: ttl}
}

type cachedCoupon struct {
	Code            string    `json:"code"`
	DiscountPercent int64     `json:"discount_percent"`
	ExpiresAt       time.Time `json:"expires_at"`
	Rule            string    `json:"rule,omitempty"`
}

func couponCacheKey(code string) string {
	return "coupon:" + code
}

func (r *CachedCouponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	code = domain.NormalizeCouponCode(code)
	key := couponCacheKey(code)

	raw, err := r.redisClient.GetClient().Get(ctx, key).Result()
	switch {
	case err == nil:
		return decodeCoupon(code, raw)
	case !errors.Is(err, goredis.Nil):
		logger.Ctx(ctx).Warn().Err(err).Str("coupon", code).Msg("coupon cache read failed")
	}

	v, err, _ := r.group.Do(code, func() (any, error) {
		c, err := r.next.FindByCode(ctx, code)
		switch {
		case errors.Is(err, domain.ErrInvalidCoupon):
			r.store(ctx, key, unknownCoupon)
			return nil, err
		case err != nil:
			return nil, err
		}
		data, _ := json.Marshal(cachedCoupon{Code: c.Code, DiscountPercent: c.DiscountPercent, ExpiresAt: c.ExpiresAt, Rule: c.Rule})
		r.store(ctx, key, string(data))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	c := *v.(*domain.Coupon)
	return &c, nil
}

func (r *CachedCouponRepository) store(ctx context.Context, key, value string) {
	if err := r.redisClient.GetClient().Set(ctx, key, value, r.ttl).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("coupon cache write failed")
	}
}

func decodeCoupon(code, raw string) (*domain.Coupon, error) {
	if raw == unknownCoupon {
		return nil, errors.Wrapf(domain.ErrInvalidCoupon, "code %s", code)
	}
	var cc cachedCoupon
	if err := json.Unmarshal([]byte(raw), &cc); err != nil {
		return nil, errors.Wrap(err, "decode cached coupon")
	}
	return &domain.Coupon{Code: cc.Code, DiscountPercent: cc.DiscountPercent, ExpiresAt: cc.ExpiresAt, Rule: cc.Rule}, nil
}
