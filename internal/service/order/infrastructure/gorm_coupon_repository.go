package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"nexus-settlement/internal/service/order/domain"
)

// GormCouponRepository reads coupons. Codes are stored upper-cased.
type GormCouponRepository struct {
	store *GormStore
}

func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var model CouponModel
	err := r.store.conn(ctx).Where("code = ?", domain.NormalizeCouponCode(code)).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrInvalidCoupon, "code %s", code)
	}
	if err != nil {
		return nil, persistErr(err, "select coupon")
	}
	return ToDomainCoupon(&model), nil
}
