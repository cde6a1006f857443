package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nexus-settlement/internal/service/order/domain"
)

// GormProfileRepository implements domain.ProfileRepository.
type GormProfileRepository struct {
	store *GormStore
}

// FindByID locks the row FOR UPDATE when called inside a transaction.
func (r *GormProfileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	db := r.store.conn(ctx)
	if inTx(ctx) {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model ProfileModel
	err := db.Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrProfileNotFound, "user %s", id)
	}
	if err != nil {
		return nil, persistErr(err, "select profile")
	}
	return ToDomainProfile(&model), nil
}

// UpdatePoints is a compare-and-swap on version.
func (r *GormProfileRepository) UpdatePoints(ctx context.Context, id string, points, expectedVersion int64) error {
	db := r.store.conn(ctx)
	res := db.Model(&ProfileModel{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"loyalty_points": points,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return persistErr(res.Error, "update loyalty points")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.Model(&ProfileModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return persistErr(err, "count profile")
	}
	if count == 0 {
		return errors.Wrapf(domain.ErrProfileNotFound, "user %s", id)
	}
	return errors.Wrapf(domain.ErrConcurrentUpdate, "profile %s version %d", id, expectedVersion)
}
